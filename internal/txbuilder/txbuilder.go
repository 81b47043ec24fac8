package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"web3client/internal/node"
)

// Request is a transaction being assembled. Exactly one fee representation
// is set: GasPrice for legacy types, the MaxFee pair for type 2. Gas is zero
// until resolved.
type Request struct {
	ChainID              *big.Int
	From                 common.Address
	Nonce                uint64
	Type                 TxType
	Gas                  uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	To                   *common.Address
	Value                *big.Int
	Data                 []byte
}

// Validate checks that the fee fields match the type tag.
func (r *Request) Validate() error {
	if r.ChainID == nil {
		return errors.New("chainID is required")
	}
	if r.Value != nil && r.Value.Sign() < 0 {
		return errors.New("value must be non-negative")
	}
	switch {
	case r.Type.IsLegacy():
		if r.GasPrice == nil {
			return errors.New("gasPrice is required for legacy transactions")
		}
		if r.MaxFeePerGas != nil || r.MaxPriorityFeePerGas != nil {
			return errors.New("legacy transactions cannot carry fee market fields")
		}
	case r.Type == TxTypeDynamicFee:
		if r.MaxFeePerGas == nil || r.MaxPriorityFeePerGas == nil {
			return errors.New("maxFeePerGas and maxPriorityFeePerGas are required")
		}
		if r.GasPrice != nil {
			return errors.New("fee market transactions cannot carry gasPrice")
		}
		if r.MaxFeePerGas.Sign() < 0 || r.MaxPriorityFeePerGas.Sign() < 0 {
			return errors.New("fee values must be non-negative")
		}
	default:
		return &UnsupportedTransactionTypeError{Type: r.Type}
	}
	return nil
}

// ToTransaction converts a fully resolved request into an unsigned
// transaction. Types 0 and 1 both produce a legacy transaction.
func (r *Request) ToTransaction() (*types.Transaction, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Gas == 0 {
		return nil, errors.New("gasLimit is required")
	}
	value := r.Value
	if value == nil {
		value = new(big.Int)
	}
	if r.Type.IsLegacy() {
		return types.NewTx(&types.LegacyTx{
			Nonce:    r.Nonce,
			GasPrice: r.GasPrice,
			Gas:      r.Gas,
			To:       r.To,
			Value:    value,
			Data:     r.Data,
		}), nil
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   r.ChainID,
		Nonce:     r.Nonce,
		Gas:       r.Gas,
		GasFeeCap: r.MaxFeePerGas,
		GasTipCap: r.MaxPriorityFeePerGas,
		To:        r.To,
		Value:     value,
		Data:      r.Data,
	}), nil
}

// CallArgs renders the request as an eth_estimateGas/eth_call object with
// only from, to, value and data.
func (r *Request) CallArgs() node.CallArgs {
	from := r.From
	args := node.CallArgs{From: &from, To: r.To}
	if r.Value != nil {
		args.Value = (*hexutil.Big)(new(big.Int).Set(r.Value))
	}
	if len(r.Data) > 0 {
		args.Data = hexutil.Bytes(r.Data)
	}
	return args
}

type BuilderConfig struct {
	// ChainID is asked from the node when nil.
	ChainID *big.Int
	// TxType is read from the latest block on every build when nil.
	TxType *TxType
	Fees   FeeEstimatorConfig
	// GasLimitMultiplier scales estimated gas. Zero or one leaves it as is.
	GasLimitMultiplier float64
}

type BuildOptions struct {
	Nonce       *uint64
	Gas         uint64
	PriorityFee *big.Int
	GasPrice    GasPriceStrategy
}

type Builder struct {
	client ChainClient
	from   common.Address
	cfg    BuilderConfig
	fees   *FeeEstimator
	nonce  NonceProvider
	logger *zap.Logger

	nonceWarn sync.Once
}

type BuilderOption func(*Builder)

// WithNonceProvider replaces the node transaction count as nonce source.
func WithNonceProvider(p NonceProvider) BuilderOption {
	return func(b *Builder) {
		b.nonce = p
	}
}

func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBuilder(client ChainClient, from common.Address, cfg BuilderConfig, opts ...BuilderOption) *Builder {
	b := &Builder{
		client: client,
		from:   from,
		cfg:    cfg,
		fees:   NewFeeEstimator(client, cfg.Fees),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) From() common.Address {
	return b.from
}

func (b *Builder) Fees() *FeeEstimator {
	return b.fees
}

// Build assembles the base request: chain id, type, fees and nonce. Gas is
// only set when opts.Gas is non-zero.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (*Request, error) {
	if b.client == nil {
		return nil, errors.New("builder client is required")
	}
	chainID, err := b.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	txType, err := b.resolveType(ctx, chainID)
	if err != nil {
		return nil, err
	}
	quote, err := b.fees.Estimate(ctx, txType, FeeOptions{
		PriorityFee: opts.PriorityFee,
		GasPrice:    opts.GasPrice,
	})
	if err != nil {
		return nil, err
	}
	nonce, err := b.resolveNonce(ctx, opts.Nonce)
	if err != nil {
		return nil, err
	}
	return &Request{
		ChainID:              chainID,
		From:                 b.from,
		Nonce:                nonce,
		Type:                 txType,
		Gas:                  opts.Gas,
		GasPrice:             quote.GasPrice,
		MaxFeePerGas:         quote.MaxFeePerGas,
		MaxPriorityFeePerGas: quote.MaxPriorityFeePerGas,
	}, nil
}

// BuildTransfer builds a plain value transfer. Gas is estimated unless
// given, so the request can be signed as is.
func (b *Builder) BuildTransfer(ctx context.Context, to common.Address, value *big.Int, opts BuildOptions) (*Request, error) {
	if value == nil {
		return nil, errors.New("value is required")
	}
	req, err := b.Build(ctx, opts)
	if err != nil {
		return nil, err
	}
	req.To = &to
	req.Value = new(big.Int).Set(value)
	if req.Gas == 0 {
		if err := b.EstimateGas(ctx, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// BuildContractCall builds a call to a contract. Gas is left to the caller
// or the sender when not given.
func (b *Builder) BuildContractCall(ctx context.Context, to common.Address, value *big.Int, data []byte, opts BuildOptions) (*Request, error) {
	req, err := b.Build(ctx, opts)
	if err != nil {
		return nil, err
	}
	req.To = &to
	if value != nil {
		req.Value = new(big.Int).Set(value)
	}
	req.Data = append([]byte(nil), data...)
	return req, nil
}

// EstimateGas fills req.Gas from eth_estimateGas.
func (b *Builder) EstimateGas(ctx context.Context, req *Request) error {
	args := req.CallArgs()
	gas, err := b.client.EstimateGas(ctx, args)
	if err != nil {
		return &EstimateGasError{Err: err, Args: args}
	}
	req.Gas = applyGasMultiplier(gas, b.cfg.GasLimitMultiplier)
	return nil
}

// ChainID returns the configured chain id or asks the node.
func (b *Builder) ChainID(ctx context.Context) (*big.Int, error) {
	if b.cfg.ChainID != nil {
		return new(big.Int).Set(b.cfg.ChainID), nil
	}
	return b.client.ChainID(ctx)
}

// ResolveType returns the configured type or asks the node.
func (b *Builder) ResolveType(ctx context.Context) (TxType, error) {
	chainID, err := b.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return b.resolveType(ctx, chainID)
}

func (b *Builder) resolveType(ctx context.Context, chainID *big.Int) (TxType, error) {
	if b.cfg.TxType != nil {
		return *b.cfg.TxType, nil
	}
	if chainID.Cmp(big.NewInt(1)) == 0 {
		return TxTypeDynamicFee, nil
	}
	ok, err := SupportsEIP1559(ctx, b.client)
	if err != nil {
		return 0, fmt.Errorf("detect fee market support: %w", err)
	}
	if ok {
		return TxTypeDynamicFee, nil
	}
	return TxTypeLegacy, nil
}

// SupportsEIP1559 reports whether the latest block carries a base fee.
func SupportsEIP1559(ctx context.Context, client ChainClient) (bool, error) {
	block, err := client.LatestBlock(ctx)
	if err != nil {
		return false, err
	}
	return block.BaseFee() != nil, nil
}

func (b *Builder) resolveNonce(ctx context.Context, explicit *uint64) (uint64, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if b.nonce != nil {
		return b.nonce.Next(ctx, b.from)
	}
	b.nonceWarn.Do(func() {
		b.logger.Warn("nonce read from node; concurrent sends from one account can reuse a nonce",
			zap.String("from", b.from.Hex()))
	})
	return b.client.PendingNonceAt(ctx, b.from)
}

// ResetNonce drops any cached nonce for the sender, e.g. after a failed send.
func (b *Builder) ResetNonce() {
	if b.nonce != nil {
		b.nonce.Reset(b.from)
	}
}

func applyGasMultiplier(gas uint64, mult float64) uint64 {
	if mult <= 0 {
		return gas
	}
	adjusted := uint64(float64(gas) * mult)
	if adjusted < gas {
		return gas
	}
	return adjusted
}
