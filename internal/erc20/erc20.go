// Package erc20 reads and moves ERC-20 balances in human units.
package erc20

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"web3client/internal/contract"
	"web3client/internal/txbuilder"
)

type Token struct {
	*contract.Contract

	mu       sync.Mutex
	decimals *uint8
}

type Option func(*Token)

// WithDecimals skips the decimals() call for tokens with known precision.
func WithDecimals(d uint8) Option {
	return func(t *Token) {
		t.decimals = &d
	}
}

// New binds the ERC-20 ABI to address. erc20.json is looked up in abiDirs
// before the bundled copy.
func New(engine contract.Engine, address common.Address, abiDirs []string, opts ...Option) (*Token, error) {
	parsed, err := contract.LoadABI(contract.ERC20ABI, abiDirs...)
	if err != nil {
		return nil, err
	}
	return Bind(engine, address, parsed, opts...), nil
}

// Bind wraps a contract whose ABI is a superset of ERC-20, such as a
// Compound cToken.
func Bind(engine contract.Engine, address common.Address, parsed abi.ABI, opts ...Option) *Token {
	t := &Token{Contract: contract.New(engine, address, parsed)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Token) owner(addr common.Address) common.Address {
	if addr == (common.Address{}) {
		return t.Engine().Address()
	}
	return addr
}

// BalanceInWei returns the raw balance of owner, or of the engine's account
// for the zero address.
func (t *Token) BalanceInWei(ctx context.Context, owner common.Address) (*big.Int, error) {
	return t.CallBigInt(ctx, "balanceOf", t.owner(owner))
}

func (t *Token) Balance(ctx context.Context, owner common.Address) (decimal.Decimal, error) {
	wei, err := t.BalanceInWei(ctx, owner)
	if err != nil {
		return decimal.Zero, err
	}
	return t.FromWei(ctx, wei)
}

func (t *Token) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	wei, err := t.CallBigInt(ctx, "totalSupply")
	if err != nil {
		return decimal.Zero, err
	}
	return t.FromWei(ctx, wei)
}

func (t *Token) Name(ctx context.Context) (string, error) {
	return t.callString(ctx, "name")
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	return t.callString(ctx, "symbol")
}

func (t *Token) callString(ctx context.Context, method string) (string, error) {
	values, err := t.Call(ctx, method)
	if err != nil {
		return "", err
	}
	return contract.Out[string](values, 0)
}

// Decimals is read once and cached.
func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.decimals != nil {
		return *t.decimals, nil
	}
	values, err := t.Call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, err := contract.Out[uint8](values, 0)
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	t.decimals = &d
	return d, nil
}

func (t *Token) FromWei(ctx context.Context, wei *big.Int) (decimal.Decimal, error) {
	d, err := t.Decimals(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return txbuilder.FormatUnits(wei, d), nil
}

// ToWei fails when amount has more fractional digits than the token.
func (t *Token) ToWei(ctx context.Context, amount decimal.Decimal) (*big.Int, error) {
	d, err := t.Decimals(ctx)
	if err != nil {
		return nil, err
	}
	return txbuilder.ParseUnits(amount.String(), d)
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error) {
	wei, err := t.AllowanceInWei(ctx, owner, spender)
	if err != nil {
		return decimal.Zero, err
	}
	return t.FromWei(ctx, wei)
}

func (t *Token) AllowanceInWei(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.CallBigInt(ctx, "allowance", t.owner(owner), spender)
}

func (t *Token) Transfer(ctx context.Context, to common.Address, amount decimal.Decimal, opts txbuilder.BuildOptions) (common.Hash, error) {
	wei, err := t.ToWei(ctx, amount)
	if err != nil {
		return common.Hash{}, err
	}
	return t.TransferWei(ctx, to, wei, opts)
}

func (t *Token) TransferWei(ctx context.Context, to common.Address, wei *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	return t.Transact(ctx, "transfer", nil, opts, to, wei)
}

func (t *Token) Approve(ctx context.Context, spender common.Address, amount decimal.Decimal, opts txbuilder.BuildOptions) (common.Hash, error) {
	wei, err := t.ToWei(ctx, amount)
	if err != nil {
		return common.Hash{}, err
	}
	return t.ApproveWei(ctx, spender, wei, opts)
}

func (t *Token) ApproveWei(ctx context.Context, spender common.Address, wei *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	return t.Transact(ctx, "approve", nil, opts, spender, wei)
}
