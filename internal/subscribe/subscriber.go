package subscribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"web3client/internal/node"
	"web3client/internal/util"
)

// State is the connection state of a Subscriber.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribing
	Listening
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Listening:
		return "listening"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrReceiveTimeout is reported when WSTimeout elapses without a frame.
var ErrReceiveTimeout = errors.New("no notification received before timeout")

// Callback receives each matched notification. tx is nil unless a
// transaction filter is configured. A returned error stops Run.
type Callback func(ctx context.Context, payload json.RawMessage, kind Kind, tx *node.Transaction) error

// TxFetcher resolves a notified hash to a transaction. *node.Client
// implements it.
type TxFetcher interface {
	WaitForTransaction(ctx context.Context, hash common.Hash, interval, timeout time.Duration) (*node.Transaction, error)
}

type Options struct {
	URI       string
	Kind      Kind
	LogFilter LogFilter
	TxFilter  TxFilter
	// Once stops Run after the callback has been invoked one time.
	Once bool
	// WSTimeout bounds the wait for each frame. Zero waits forever.
	WSTimeout time.Duration

	PollInterval time.Duration
	PollTimeout  time.Duration

	OnSubscribe  func(id string)
	OnFetch      func(tx *node.Transaction, payload json.RawMessage)
	OnFetchError func(err error, payload json.RawMessage)
	// OnConnectionClosed sees every connection failure. Returning an error
	// stops Run with it; returning nil reconnects.
	OnConnectionClosed func(err error) error

	// ReconnectDelay is the first wait before reconnecting, doubled up to
	// MaxReconnectDelay. Zero reconnects immediately.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

type Subscriber struct {
	opts    Options
	fetcher TxFetcher
	dialer  Dialer
	logger  *zap.Logger

	state atomic.Int32
	subID atomic.Pointer[string]
}

// runState is shared by the sessions of one Run call.
type runState struct {
	cb      Callback
	d       dispatcher
	fired   atomic.Bool
	firedCh chan struct{}
	backoff util.Backoff
}

// untilFired derives a context that also ends when a Once run has fired,
// so lookups for notifications that can no longer be delivered stop early.
func (rs *runState) untilFired(ctx context.Context, once bool) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	if once {
		go func() {
			select {
			case <-rs.firedCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}
	return ctx, cancel
}

func (rs *runState) satisfied() bool {
	select {
	case <-rs.firedCh:
		return true
	default:
		return false
	}
}

type Option func(*Subscriber)

func WithDialer(d Dialer) Option {
	return func(s *Subscriber) {
		if d != nil {
			s.dialer = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a subscriber. fetcher may be nil when no transaction filter
// is set.
func New(opts Options, fetcher TxFetcher, extra ...Option) *Subscriber {
	if opts.Kind == "" {
		opts.Kind = NewPendingTransactions
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}
	s := &Subscriber{
		opts:    opts,
		fetcher: fetcher,
		dialer:  NetDialer{},
		logger:  zap.NewNop(),
	}
	for _, opt := range extra {
		opt(s)
	}
	return s
}

func (s *Subscriber) State() State {
	return State(s.state.Load())
}

// SubscriptionID returns the id of the current session, or "".
func (s *Subscriber) SubscriptionID() string {
	if p := s.subID.Load(); p != nil {
		return *p
	}
	return ""
}

// RunSync handles one notification at a time: the next frame is read only
// after cb returns.
func (s *Subscriber) RunSync(ctx context.Context, cb Callback) error {
	return s.run(ctx, cb, newSyncDispatcher(ctx))
}

// RunConcurrent starts cb in its own goroutine per notification, in frame
// order. Completion order is not guaranteed. The first callback error
// cancels the rest and is returned.
func (s *Subscriber) RunConcurrent(ctx context.Context, cb Callback) error {
	return s.run(ctx, cb, newGroupDispatcher(ctx))
}

func (s *Subscriber) check() error {
	transport, err := node.TransportFor(s.opts.URI)
	if err != nil {
		return err
	}
	if transport == node.TransportHTTP {
		return fmt.Errorf("%w: subscriptions need a websocket or ipc uri, got %q", node.ErrUnsupportedScheme, s.opts.URI)
	}
	if !s.opts.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedNotificationKind, s.opts.Kind)
	}
	if s.opts.TxFilter.Active() {
		if !s.opts.Kind.CarriesTransaction() {
			return fmt.Errorf("%w: transaction filters need pending transactions or logs, got %q", ErrUnsupportedNotificationKind, s.opts.Kind)
		}
		if s.fetcher == nil {
			return errors.New("transaction filters need a fetcher")
		}
	}
	return nil
}

func (s *Subscriber) run(ctx context.Context, cb Callback, d dispatcher) error {
	if cb == nil {
		return errors.New("callback is required")
	}
	if err := s.check(); err != nil {
		return err
	}
	ctx = d.runContext()
	rs := &runState{
		cb:      cb,
		d:       d,
		firedCh: make(chan struct{}),
		backoff: util.Backoff{Initial: s.opts.ReconnectDelay, Max: s.opts.MaxReconnectDelay},
	}

	var runErr error
	for {
		done, err := s.session(ctx, rs)
		s.setState(Disconnected)
		s.subID.Store(nil)
		if done {
			runErr = err
			break
		}
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		if s.opts.OnConnectionClosed != nil {
			if stop := s.opts.OnConnectionClosed(err); stop != nil {
				runErr = stop
				break
			}
		}
		s.logger.Warn("subscription connection closed, reconnecting",
			zap.String("kind", string(s.opts.Kind)), zap.Error(err))
		if !rs.backoff.Wait(ctx) {
			runErr = ctx.Err()
			break
		}
	}
	if err := d.wait(); err != nil {
		return err
	}
	return runErr
}

type received struct {
	msg []byte
	err error
}

// session runs one connection. done is true when Run should return err
// instead of reconnecting.
func (s *Subscriber) session(ctx context.Context, rs *runState) (done bool, err error) {
	s.setState(Connecting)
	conn, err := s.dialer.Dial(ctx, s.opts.URI)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	s.setState(Subscribing)
	id, err := s.subscribe(conn)
	if err != nil {
		return false, err
	}
	s.subID.Store(&id)
	rs.backoff.Reset()
	s.logger.Info("subscribed", zap.String("kind", string(s.opts.Kind)), zap.String("subscription", id))
	if s.opts.OnSubscribe != nil {
		s.opts.OnSubscribe(id)
	}

	s.setState(Listening)
	frames := make(chan received)
	next := make(chan struct{}, 1)
	stop := make(chan struct{})
	defer close(stop)
	go s.read(conn, frames, next, stop)

	next <- struct{}{}
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-rs.firedCh:
			return true, nil
		case r := <-frames:
			if r.err != nil {
				return false, r.err
			}
			if err := s.handle(ctx, r.msg, id, rs); err != nil {
				return true, err
			}
			if rs.satisfied() {
				return true, nil
			}
			next <- struct{}{}
		}
	}
}

func (s *Subscriber) subscribe(conn Conn) (string, error) {
	if err := conn.Send(subscribeRequest(s.opts.Kind, s.opts.LogFilter)); err != nil {
		return "", fmt.Errorf("send subscribe: %w", err)
	}
	if s.opts.WSTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.WSTimeout))
	}
	raw, err := conn.Receive()
	if err != nil {
		return "", &SubscriptionError{Kind: s.opts.Kind, Err: err}
	}
	return parseAck(s.opts.Kind, raw)
}

// read receives one frame per token on next. The deadline is armed only
// when the previous frame has been handled, so a slow synchronous callback
// does not count against WSTimeout.
func (s *Subscriber) read(conn Conn, out chan<- received, next, stop <-chan struct{}) {
	for {
		select {
		case <-next:
		case <-stop:
			return
		}
		if s.opts.WSTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.WSTimeout))
		} else {
			_ = conn.SetReadDeadline(time.Time{})
		}
		msg, err := conn.Receive()
		if isTimeout(err) {
			err = fmt.Errorf("%w (%s): %v", ErrReceiveTimeout, s.opts.WSTimeout, err)
		}
		select {
		case out <- received{msg: msg, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// handle drops foreign and malformed frames and dispatches the rest.
func (s *Subscriber) handle(ctx context.Context, raw []byte, id string, rs *runState) error {
	subID, payload, err := parseNotification(raw)
	if err != nil {
		s.logger.Debug("dropping frame", zap.Error(err), zap.ByteString("frame", raw))
		return nil
	}
	if subID != id {
		s.logger.Debug("dropping frame of another subscription", zap.String("subscription", subID))
		return nil
	}
	return rs.d.dispatch(func(ctx context.Context) error {
		return s.process(ctx, payload, rs)
	})
}

func (s *Subscriber) process(ctx context.Context, payload json.RawMessage, rs *runState) error {
	kind := s.opts.Kind
	if !s.opts.TxFilter.Active() {
		return s.invoke(ctx, rs, payload, nil)
	}
	lookupCtx, cancel := rs.untilFired(ctx, s.opts.Once)
	defer cancel()
	tx, err := s.resolve(lookupCtx, payload)
	if err != nil {
		if lookupCtx.Err() != nil {
			return nil
		}
		s.logger.Warn("transaction fetch failed", zap.String("kind", string(kind)), zap.Error(err))
		if s.opts.OnFetchError != nil {
			s.opts.OnFetchError(err, payload)
		}
		return nil
	}
	if s.opts.OnFetch != nil {
		s.opts.OnFetch(tx, payload)
	}
	if !s.opts.TxFilter.Match(tx) {
		return nil
	}
	return s.invoke(ctx, rs, payload, tx)
}

func (s *Subscriber) resolve(ctx context.Context, payload json.RawMessage) (*node.Transaction, error) {
	hash, err := HashFromNotification(s.opts.Kind, payload)
	if err != nil {
		return nil, err
	}
	return s.fetcher.WaitForTransaction(ctx, hash, s.opts.PollInterval, s.opts.PollTimeout)
}

// invoke runs cb unless Once has already been satisfied.
func (s *Subscriber) invoke(ctx context.Context, rs *runState, payload json.RawMessage, tx *node.Transaction) error {
	if s.opts.Once {
		if !rs.fired.CompareAndSwap(false, true) {
			return nil
		}
		close(rs.firedCh)
	}
	return rs.cb(ctx, payload, s.opts.Kind, tx)
}

func (s *Subscriber) setState(st State) {
	s.state.Store(int32(st))
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

