package rpclog

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MemoryLog keeps entries in memory. With a maximum set it keeps only the
// newest entries.
type MemoryLog struct {
	mu      sync.Mutex
	max     int
	start   int
	entries []Entry
}

type MemoryOption func(*MemoryLog)

// WithMaxEntries bounds the log to the newest n entries. Zero keeps all.
func WithMaxEntries(n int) MemoryOption {
	return func(l *MemoryLog) {
		if n > 0 {
			l.max = n
		}
	}
}

func NewMemoryLog(opts ...MemoryOption) *MemoryLog {
	l := &MemoryLog{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLog) LogRequest(e Entry) {
	l.append(e)
}

func (l *MemoryLog) LogResponse(e Entry) {
	l.append(e)
}

func (l *MemoryLog) append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max == 0 || len(l.entries) < l.max {
		l.entries = append(l.entries, e)
		return
	}
	l.entries[l.start] = e
	l.start = (l.start + 1) % l.max
}

// Entries returns a copy in logging order, oldest first.
func (l *MemoryLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	out = append(out, l.entries[l.start:]...)
	return append(out, l.entries[:l.start]...)
}

func (l *MemoryLog) Requests() []Entry {
	return l.filter(func(e Entry) bool { return e.Kind == KindRequest })
}

func (l *MemoryLog) Responses() []Entry {
	return l.filter(func(e Entry) bool { return e.Kind == KindResponse })
}

func (l *MemoryLog) TxRequests() []Entry {
	return l.filter(func(e Entry) bool { return e.Kind == KindRequest && IsTxMethod(e.Method) })
}

func (l *MemoryLog) TxResponses() []Entry {
	return l.filter(func(e Entry) bool { return e.Kind == KindResponse && IsTxMethod(e.Method) })
}

func (l *MemoryLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.start = 0
}

func (l *MemoryLog) filter(keep func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// ZapLog writes one info line per entry.
type ZapLog struct {
	logger *zap.Logger
}

func NewZapLog(logger *zap.Logger) *ZapLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLog{logger: logger}
}

func (l *ZapLog) LogRequest(e Entry) {
	l.logger.Info(FormatRequest(e))
}

func (l *ZapLog) LogResponse(e Entry) {
	l.logger.Info(FormatResponse(e))
}

func FormatRequest(e Entry) string {
	msg := fmt.Sprintf("RPC request: Id: %s, Method: %s, Params: %v", e.ID, e.Method, e.Params)
	if e.TxData != nil {
		msg += ", Transaction data: " + e.TxData.String()
	}
	return msg
}

func FormatResponse(e Entry) string {
	msg := fmt.Sprintf("RPC response: Id: %s, Method: %s, Params: %v", e.ID, e.Method, e.Params)
	if e.Error != "" {
		msg += ", Error: " + e.Error
	} else {
		msg += ", Response: " + string(e.Result)
	}
	msg += fmt.Sprintf(", Elapsed: %s", e.Elapsed)
	if e.Tx != nil {
		msg += fmt.Sprintf(", Transaction data: %+v", *e.Tx)
	}
	if e.Receipt != nil {
		msg += fmt.Sprintf(", Transaction receipt: %+v", *e.Receipt)
	}
	return msg
}

type multi []Sink

// Multi fans every entry out to sinks in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) LogRequest(e Entry) {
	for _, s := range m {
		s.LogRequest(e)
	}
}

func (m multi) LogResponse(e Entry) {
	for _, s := range m {
		s.LogResponse(e)
	}
}
