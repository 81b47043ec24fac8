package compound

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"web3client/internal/contract"
	"web3client/internal/erc20"
	"web3client/internal/txbuilder"
)

// CErc20 is a market whose underlying asset is an ERC-20 token.
type CErc20 struct {
	market

	abiDirs    []string
	mu         sync.Mutex
	underlying *erc20.Token
}

func NewCErc20(engine contract.Engine, address common.Address, abiDirs ...string) (*CErc20, error) {
	parsed, err := contract.LoadABI(contract.CompoundCErc20ABI, abiDirs...)
	if err != nil {
		return nil, err
	}
	return &CErc20{
		market:  market{Token: erc20.Bind(engine, address, parsed)},
		abiDirs: abiDirs,
	}, nil
}

func (c *CErc20) Underlying(ctx context.Context) (common.Address, error) {
	values, err := c.Call(ctx, "underlying")
	if err != nil {
		return common.Address{}, err
	}
	return contract.Out[common.Address](values, 0)
}

// UnderlyingToken binds the underlying asset with the same engine.
func (c *CErc20) UnderlyingToken(ctx context.Context) (*erc20.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.underlying != nil {
		return c.underlying, nil
	}
	addr, err := c.Underlying(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := erc20.New(c.Engine(), addr, c.abiDirs)
	if err != nil {
		return nil, err
	}
	c.underlying = tok
	return tok, nil
}

func (c *CErc20) Supply(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	return c.Transact(ctx, "mint", nil, opts, amount)
}

// ApproveAndSupply approves the market to pull amount, waits for the
// approval to be mined, then supplies.
func (c *CErc20) ApproveAndSupply(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	if err := c.approve(ctx, amount, opts); err != nil {
		return common.Hash{}, err
	}
	return c.Supply(ctx, amount, opts)
}

func (c *CErc20) Repay(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	return c.Transact(ctx, "repayBorrow", nil, opts, amount)
}

func (c *CErc20) ApproveAndRepay(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	if err := c.approve(ctx, amount, opts); err != nil {
		return common.Hash{}, err
	}
	return c.Repay(ctx, amount, opts)
}

// RepayAll repays the borrow balance read just before sending. Interest
// accrued while the transaction is pending stays as debt.
func (c *CErc20) RepayAll(ctx context.Context, opts txbuilder.BuildOptions) (common.Hash, error) {
	owed, err := c.Borrowed(ctx, common.Address{})
	if err != nil {
		return common.Hash{}, err
	}
	return c.Repay(ctx, owed, opts)
}

func (c *CErc20) ApproveAndRepayAll(ctx context.Context, opts txbuilder.BuildOptions) (common.Hash, error) {
	owed, err := c.Borrowed(ctx, common.Address{})
	if err != nil {
		return common.Hash{}, err
	}
	return c.ApproveAndRepay(ctx, owed, opts)
}

func (c *CErc20) approve(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) error {
	tok, err := c.UnderlyingToken(ctx)
	if err != nil {
		return err
	}
	hash, err := tok.ApproveWei(ctx, c.Address(), amount, feesOnly(opts))
	if err != nil {
		return err
	}
	return c.waitSucceeded(ctx, hash)
}
