package compound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"web3client/internal/contract"
	"web3client/internal/erc20"
	"web3client/internal/txbuilder"
)

// CEther is the market of the chain's native coin. Supply and repay carry
// the amount as transaction value, so nothing needs approving.
type CEther struct {
	market
}

func NewCEther(engine contract.Engine, address common.Address, abiDirs ...string) (*CEther, error) {
	parsed, err := contract.LoadABI(contract.CompoundCEtherABI, abiDirs...)
	if err != nil {
		return nil, err
	}
	return &CEther{market: market{Token: erc20.Bind(engine, address, parsed)}}, nil
}

func (c *CEther) Underlying(context.Context) (common.Address, error) {
	return common.Address{}, ErrNoUnderlying
}

func (c *CEther) UnderlyingToken(context.Context) (*erc20.Token, error) {
	return nil, ErrNoUnderlying
}

func (c *CEther) Supply(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	return c.Transact(ctx, "mint", amount, opts)
}

func (c *CEther) ApproveAndSupply(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	return c.Supply(ctx, amount, opts)
}

func (c *CEther) Repay(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	return c.Transact(ctx, "repayBorrow", amount, opts)
}

func (c *CEther) ApproveAndRepay(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	return c.Repay(ctx, amount, opts)
}

// RepayAll sends the borrow balance read just before sending. Interest
// accrued until the transaction is mined is left as dust; send a slightly
// larger Repay to clear it.
func (c *CEther) RepayAll(ctx context.Context, opts txbuilder.BuildOptions) (common.Hash, error) {
	owed, err := c.Borrowed(ctx, common.Address{})
	if err != nil {
		return common.Hash{}, err
	}
	return c.Repay(ctx, owed, opts)
}

func (c *CEther) ApproveAndRepayAll(ctx context.Context, opts txbuilder.BuildOptions) (common.Hash, error) {
	return c.RepayAll(ctx, opts)
}
