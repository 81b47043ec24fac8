package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// TxType is the EIP-2718 transaction type tag.
type TxType uint8

const (
	TxTypeLegacy     TxType = 0
	TxTypeAccessList TxType = 1
	TxTypeDynamicFee TxType = 2
)

// IsLegacy reports whether t uses a single gas price field.
func (t TxType) IsLegacy() bool {
	return t == TxTypeLegacy || t == TxTypeAccessList
}

// DefaultPriorityFeeWei is the type 2 tip used when none is configured,
// 0.01 gwei.
const DefaultPriorityFeeWei = 10_000_000

// GasPriceStrategy supplies the gas price for legacy transactions.
type GasPriceStrategy func(ctx context.Context) (*big.Int, error)

// NodeGasPrice asks the node via eth_gasPrice.
func NodeGasPrice(client ChainClient) GasPriceStrategy {
	return func(ctx context.Context) (*big.Int, error) {
		return client.GasPrice(ctx)
	}
}

// FixedGasPrice always returns price.
func FixedGasPrice(price *big.Int) GasPriceStrategy {
	return func(context.Context) (*big.Int, error) {
		return new(big.Int).Set(price), nil
	}
}

type FeeEstimatorConfig struct {
	// PriorityFee is the default type 2 tip. Nil means DefaultPriorityFeeWei.
	PriorityFee *big.Int
	// Ceiling caps the effective fee per gas. Nil means no ceiling.
	Ceiling *big.Int
	// GasPrice is the default legacy strategy. Nil means NodeGasPrice.
	GasPrice GasPriceStrategy
}

// FeeOptions override the estimator config for a single estimate.
type FeeOptions struct {
	PriorityFee *big.Int
	Ceiling     *big.Int
	GasPrice    GasPriceStrategy
}

// FeeQuote holds either GasPrice (types 0 and 1) or the fee market triple.
type FeeQuote struct {
	Type                 TxType
	GasPrice             *big.Int
	BaseFee              *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
}

// EffectiveFee is the value compared against the ceiling: the gas price for
// legacy quotes, the base fee for fee market quotes.
func (q FeeQuote) EffectiveFee() *big.Int {
	if q.Type.IsLegacy() {
		return q.GasPrice
	}
	return q.BaseFee
}

type FeeEstimator struct {
	client ChainClient
	cfg    FeeEstimatorConfig
}

func NewFeeEstimator(client ChainClient, cfg FeeEstimatorConfig) *FeeEstimator {
	if cfg.PriorityFee == nil {
		cfg.PriorityFee = big.NewInt(DefaultPriorityFeeWei)
	}
	if cfg.GasPrice == nil && client != nil {
		cfg.GasPrice = NodeGasPrice(client)
	}
	return &FeeEstimator{client: client, cfg: cfg}
}

// Estimate computes the fee fields for txType and enforces the ceiling. A
// fee equal to the ceiling is accepted.
func (e *FeeEstimator) Estimate(ctx context.Context, txType TxType, opts FeeOptions) (FeeQuote, error) {
	ceiling := e.cfg.Ceiling
	if opts.Ceiling != nil {
		ceiling = opts.Ceiling
	}

	var quote FeeQuote
	switch {
	case txType.IsLegacy():
		strategy := e.cfg.GasPrice
		if opts.GasPrice != nil {
			strategy = opts.GasPrice
		}
		if strategy == nil {
			return FeeQuote{}, errors.New("gas price strategy is not configured")
		}
		price, err := strategy(ctx)
		if err != nil {
			return FeeQuote{}, err
		}
		quote = FeeQuote{Type: txType, GasPrice: price}
	case txType == TxTypeDynamicFee:
		baseFee, err := e.baseFee(ctx)
		if err != nil {
			return FeeQuote{}, err
		}
		tip := e.cfg.PriorityFee
		if opts.PriorityFee != nil {
			tip = opts.PriorityFee
		}
		if tip.Sign() < 0 {
			return FeeQuote{}, errors.New("priority fee must be non-negative")
		}
		quote = FeeQuote{
			Type:                 txType,
			BaseFee:              baseFee,
			MaxPriorityFeePerGas: new(big.Int).Set(tip),
			MaxFeePerGas:         MaxFee(baseFee, tip),
		}
	default:
		return FeeQuote{}, &UnsupportedTransactionTypeError{Type: txType}
	}

	if fee := quote.EffectiveFee(); ceiling != nil && fee.Cmp(ceiling) > 0 {
		return FeeQuote{}, &TransactionTooExpensiveError{
			Fee:     new(big.Int).Set(fee),
			Ceiling: new(big.Int).Set(ceiling),
		}
	}
	return quote, nil
}

func (e *FeeEstimator) baseFee(ctx context.Context) (*big.Int, error) {
	block, err := e.client.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	baseFee := block.BaseFee()
	if baseFee == nil {
		return nil, fmt.Errorf("latest block has no base fee: %w", &UnsupportedTransactionTypeError{Type: TxTypeDynamicFee})
	}
	return baseFee, nil
}

// MaxFee returns 2*baseFee + tip. It tolerates one full base fee doubling
// before the transaction stops being includable.
func MaxFee(baseFee, tip *big.Int) *big.Int {
	out := new(big.Int).Lsh(baseFee, 1)
	return out.Add(out, tip)
}
