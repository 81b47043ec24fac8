// Package app assembles a ready client from configuration: node transport,
// RPC logging, nonce provider, signer and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"web3client/internal/client"
	"web3client/internal/config"
	"web3client/internal/contract"
	"web3client/internal/networks"
	"web3client/internal/node"
	"web3client/internal/noncestore"
	"web3client/internal/rpclog"
	"web3client/internal/signer"
	"web3client/internal/subscribe"
	"web3client/internal/txbuilder"
)

type App struct {
	cfg    *config.Config
	logger *zap.Logger

	client   *client.Client
	node     *node.Client
	memLog   *rpclog.MemoryLog
	registry *prometheus.Registry
	decoder  *contract.Decoder
	closers  []func()
}

type Option func(*openOptions)

type openOptions struct {
	caller node.Caller
	rdb    redis.UniversalClient
}

// WithCaller uses c instead of dialing node.uri.
func WithCaller(c node.Caller) Option {
	return func(o *openOptions) {
		o.caller = c
	}
}

// WithRedis uses rdb for the redis nonce manager instead of dialing
// redis.addr.
func WithRedis(rdb redis.UniversalClient) Option {
	return func(o *openOptions) {
		o.rdb = rdb
	}
}

// Open wires everything cfg describes. A missing signer is not an error;
// the client is then read only.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	if err := a.open(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context, o openOptions) error {
	bcfg, err := txbuilder.ConfigFromFile(a.cfg)
	if err != nil {
		return err
	}
	uri := a.cfg.Node.URI
	if a.cfg.Network != "" {
		n, err := networks.Lookup(a.cfg.Network)
		if err != nil {
			return err
		}
		if uri == "" {
			uri = n.FirstRPC()
		}
		pinned := n.BuilderConfig()
		if bcfg.ChainID == nil {
			bcfg.ChainID = pinned.ChainID
		}
		if bcfg.TxType == nil {
			bcfg.TxType = pinned.TxType
		}
	}

	caller := o.caller
	if caller == nil {
		rpcClient, err := node.Dial(ctx, uri,
			node.WithRequestTimeout(a.cfg.Node.RequestTimeout.Duration),
			node.WithRetryMax(a.cfg.Node.HTTPRetryMax),
			node.WithRetryWait(a.cfg.Node.RetryWaitMin.Duration, a.cfg.Node.RetryWaitMax.Duration),
			node.WithUserAgent(a.cfg.Node.UserAgent))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rpcClient.Close)
		caller = rpcClient
		a.logger.Info("node connected", zap.String("uri", uri))
	}

	if a.decoder, err = a.loadDecoder(); err != nil {
		return err
	}
	mws, err := a.middlewares()
	if err != nil {
		return err
	}
	a.node = node.NewClient(caller, mws...)

	copts := []client.Option{
		client.WithLogger(a.logger),
		client.WithBuilderConfig(bcfg),
		client.WithPolling(a.cfg.Tx.PollInterval.Duration, a.cfg.Tx.PollTimeout.Duration),
	}
	s, err := signer.FromConfig(a.cfg)
	switch {
	case errors.Is(err, signer.ErrNoSigner):
		a.logger.Info("no signer configured, client is read only")
	case err != nil:
		return fmt.Errorf("signer: %w", err)
	default:
		copts = append(copts, client.WithSigner(s))
	}
	provider, err := a.nonceProvider(ctx, o)
	if err != nil {
		return err
	}
	if provider != nil {
		copts = append(copts, client.WithNonceProvider(provider))
	}
	a.client = client.New(a.node, copts...)
	return nil
}

// loadDecoder knows the bundled ABIs, with abi_dir taking precedence.
func (a *App) loadDecoder() (*contract.Decoder, error) {
	names := []string{
		contract.ERC20ABI,
		contract.CompoundCErc20ABI,
		contract.CompoundCEtherABI,
		contract.CompoundComptrollerABI,
	}
	dirs := a.ABIDirs()
	abis := make([]abi.ABI, 0, len(names))
	for _, name := range names {
		parsed, err := contract.LoadABI(name, dirs...)
		if err != nil {
			return nil, err
		}
		abis = append(abis, parsed)
	}
	return contract.NewDecoder(abis...), nil
}

func (a *App) middlewares() ([]node.Middleware, error) {
	lc := a.cfg.RPCLog
	if !lc.Enabled {
		return nil, nil
	}
	a.memLog = rpclog.NewMemoryLog(rpclog.WithMaxEntries(lc.MaxEntries))
	sinks := []rpclog.Sink{a.memLog, rpclog.NewZapLog(a.logger.Named("rpc"))}
	if lc.Metrics {
		m, err := rpclog.NewMetricsLog(a.registry)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, m)
	}
	mw := rpclog.New(rpclog.Multi(sinks...), rpclog.Options{
		Allow:        lc.Allow,
		DecodeTx:     lc.DecodeTx != nil && *lc.DecodeTx,
		Decoder:      a.decoder,
		FetchTx:      lc.FetchTx,
		FetchReceipt: lc.FetchReceipt,
		PollInterval: a.cfg.Tx.PollInterval.Duration,
		PollTimeout:  a.cfg.Tx.PollTimeout.Duration,
		Logger:       a.logger,
	})
	return []node.Middleware{mw}, nil
}

func (a *App) nonceProvider(ctx context.Context, o openOptions) (txbuilder.NonceProvider, error) {
	switch a.cfg.Tx.NonceManager {
	case "memory":
		return txbuilder.NewNonceManager(a.node), nil
	case "redis":
		rdb := o.rdb
		if rdb == nil {
			c, err := noncestore.Dial(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, func() { _ = c.Close() })
			rdb = c
		}
		return noncestore.New(rdb, a.node,
			noncestore.WithPrefix(a.cfg.Redis.Prefix),
			noncestore.WithLogger(a.logger)), nil
	default:
		return nil, nil
	}
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) Config() *config.Config         { return a.cfg }
func (a *App) Logger() *zap.Logger            { return a.logger }
func (a *App) Client() *client.Client         { return a.client }
func (a *App) Decoder() *contract.Decoder     { return a.decoder }
func (a *App) Registry() *prometheus.Registry { return a.registry }

// RPCLog is nil unless rpc_log.enabled is set.
func (a *App) RPCLog() *rpclog.MemoryLog { return a.memLog }

// Subscriber returns a subscriber for the configured websocket endpoint.
// Connection settings left zero in opts come from the subscribe section.
func (a *App) Subscriber(opts subscribe.Options, extra ...subscribe.Option) *subscribe.Subscriber {
	sc := a.cfg.Subscribe
	if opts.URI == "" {
		opts.URI = a.cfg.SubscribeURI()
	}
	if opts.WSTimeout == 0 {
		opts.WSTimeout = sc.WSTimeout.Duration
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = sc.ReconnectDelay.Duration
	}
	if opts.MaxReconnectDelay == 0 {
		opts.MaxReconnectDelay = sc.MaxReconnectDelay.Duration
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = sc.PollInterval.Duration
	}
	if opts.PollTimeout == 0 {
		opts.PollTimeout = sc.PollTimeout.Duration
	}
	return a.client.Subscriber(opts, extra...)
}

// ABIDirs lists the directories searched before the bundled ABIs.
func (a *App) ABIDirs() []string {
	if a.cfg.ABIDir == "" {
		return nil
	}
	return []string{a.cfg.ABIDir}
}

// ChainID is the pinned chain id, or the node's.
func (a *App) ChainID(ctx context.Context) (*big.Int, error) {
	return a.client.Builder().ChainID(ctx)
}
