// Package rpclog records JSON-RPC traffic as a node.Middleware. Requests
// that carry a transaction can be decoded, and sent transactions can be
// followed up with their mined data.
package rpclog

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"web3client/internal/contract"
	"web3client/internal/node"
)

// Sink receives log entries. Implementations must be safe for concurrent
// use when the node client is.
type Sink interface {
	LogRequest(e Entry)
	LogResponse(e Entry)
}

type Options struct {
	// Allow lists the methods to log. Nil logs every method and an empty
	// list logs none.
	Allow *[]string
	// DecodeTx attaches TxData to requests of TxMethods.
	DecodeTx bool
	// Decoder, when set, decodes the calldata of TxData.
	Decoder *contract.Decoder
	// FetchTx and FetchReceipt follow up a successful
	// eth_sendRawTransaction with the node's view of it.
	FetchTx      bool
	FetchReceipt bool
	PollInterval time.Duration
	PollTimeout  time.Duration
	Logger       *zap.Logger
}

// AllowMethods is a shorthand for Options.Allow.
func AllowMethods(methods ...string) *[]string {
	if methods == nil {
		methods = []string{}
	}
	return &methods
}

func (o Options) allowed(method string) bool {
	if o.Allow == nil {
		return true
	}
	return slices.Contains(*o.Allow, method)
}

// New returns a middleware feeding sink. The wrapped call's result and error
// are passed through untouched.
func New(sink Sink, opts Options) node.Middleware {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 120 * time.Second
	}
	return func(next node.Caller) node.Caller {
		m := &middleware{sink: sink, opts: opts, next: next, follow: node.NewClient(next)}
		return node.CallerFunc(m.call)
	}
}

type middleware struct {
	sink Sink
	opts Options
	next node.Caller
	// follow reads through next so follow-up calls are not logged.
	follow *node.Client
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (m *middleware) call(ctx context.Context, result any, method string, args ...any) error {
	if !m.opts.allowed(method) {
		return m.next.CallContext(ctx, result, method, args...)
	}
	id := newID()
	req := Entry{
		ID:        id,
		Kind:      KindRequest,
		Timestamp: time.Now(),
		Method:    method,
		Params:    args,
	}
	if m.opts.DecodeTx && IsTxMethod(method) {
		req.TxData = m.decode(method, args)
	}
	m.sink.LogRequest(req)

	start := time.Now()
	err := m.next.CallContext(ctx, result, method, args...)
	elapsed := time.Since(start)

	resp := Entry{
		ID:        id,
		Kind:      KindResponse,
		Timestamp: time.Now(),
		Method:    method,
		Params:    args,
		Elapsed:   elapsed,
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Result = marshalResult(result)
		if method == "eth_sendRawTransaction" && (m.opts.FetchTx || m.opts.FetchReceipt) {
			m.followUp(ctx, &resp)
		}
	}
	m.sink.LogResponse(resp)
	return err
}

func (m *middleware) decode(method string, args []any) *TxData {
	d, err := decodeTxData(method, args)
	if err != nil {
		m.opts.Logger.Warn("could not decode call", zap.String("method", method), zap.Error(err))
		return nil
	}
	if d != nil && m.opts.Decoder != nil && len(d.Data) >= 4 {
		decoded, err := m.opts.Decoder.DecodeInput(d.Data)
		if err != nil {
			m.opts.Logger.Warn("could not decode calldata", zap.String("method", method), zap.Error(err))
		}
		d.Decoded = decoded
	}
	return d
}

func (m *middleware) followUp(ctx context.Context, resp *Entry) {
	var hash common.Hash
	if err := json.Unmarshal(resp.Result, &hash); err != nil {
		m.opts.Logger.Warn("unexpected eth_sendRawTransaction result", zap.ByteString("result", resp.Result))
		return
	}
	if m.opts.FetchTx {
		tx, err := m.follow.TransactionByHash(ctx, hash)
		if err != nil {
			m.opts.Logger.Warn("could not fetch sent transaction", zap.String("hash", hash.Hex()), zap.Error(err))
		}
		resp.Tx = tx
	}
	if m.opts.FetchReceipt {
		r, err := m.follow.WaitForReceipt(ctx, hash, m.opts.PollInterval, m.opts.PollTimeout)
		if err != nil {
			m.opts.Logger.Warn("could not fetch receipt", zap.String("hash", hash.Hex()), zap.Error(err))
		}
		resp.Receipt = r
	}
}

func marshalResult(result any) json.RawMessage {
	if result == nil {
		return nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return b
}
