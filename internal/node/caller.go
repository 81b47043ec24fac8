package node

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum"
)

var (
	// ErrNotFound is returned when the node answers a lookup with null.
	ErrNotFound = ethereum.NotFound

	ErrUnsupportedScheme = errors.New("unsupported node uri scheme")
)

// Caller performs a single JSON-RPC call. *rpc.Client satisfies it.
type Caller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// Middleware wraps a Caller. It may observe or alter the call but should
// forward it to next.
type Middleware func(next Caller) Caller

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, result any, method string, args ...any) error

func (f CallerFunc) CallContext(ctx context.Context, result any, method string, args ...any) error {
	return f(ctx, result, method, args...)
}

// Chain wraps c with mws so that mws[0] sees each call first.
func Chain(c Caller, mws ...Middleware) Caller {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		c = mws[i](c)
	}
	return c
}
