// Package nodetest provides an in-memory node.Caller for tests.
package nodetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler produces the JSON-compatible result for one call.
type Handler func(args []any) (any, error)

// Call records one request seen by Fake.
type Call struct {
	Method string
	Args   []any
}

// Fake answers JSON-RPC calls from registered handlers. Results are round
// tripped through encoding/json so they decode exactly like node responses.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
}

func New() *Fake {
	return &Fake{handlers: map[string]Handler{}}
}

// Handle registers h for method, replacing any previous handler.
func (f *Fake) Handle(method string, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
	return f
}

// Set registers a static result for method.
func (f *Fake) Set(method string, result any) *Fake {
	return f.Handle(method, func([]any) (any, error) { return result, nil })
}

// Fail registers an error for method.
func (f *Fake) Fail(method string, err error) *Fake {
	return f.Handle(method, func([]any) (any, error) { return nil, err })
}

func (f *Fake) CallContext(ctx context.Context, result any, method string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Args: args})
	h, ok := f.handlers[method]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("nodetest: unexpected method %s", method)
	}
	v, err := h(args)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, result)
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Methods lists the called methods in order.
func (f *Fake) Methods() []string {
	calls := f.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Method)
	}
	return out
}

func (f *Fake) Count(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// DecodeArg re-encodes args[i] as JSON into v, the way a node would see it.
func DecodeArg(args []any, i int, v any) error {
	if i >= len(args) {
		return fmt.Errorf("nodetest: missing arg %d", i)
	}
	b, err := json.Marshal(args[i])
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
