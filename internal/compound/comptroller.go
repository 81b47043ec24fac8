package compound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"web3client/internal/contract"
	"web3client/internal/txbuilder"
)

type Comptroller struct {
	*contract.Contract
}

func NewComptroller(engine contract.Engine, address common.Address, abiDirs ...string) (*Comptroller, error) {
	parsed, err := contract.LoadABI(contract.CompoundComptrollerABI, abiDirs...)
	if err != nil {
		return nil, err
	}
	return &Comptroller{Contract: contract.New(engine, address, parsed)}, nil
}

// AllMarkets lists every market the comptroller has listed.
func (c *Comptroller) AllMarkets(ctx context.Context) ([]common.Address, error) {
	return c.addresses(ctx, "getAllMarkets")
}

func (c *Comptroller) IsListed(ctx context.Context, cToken common.Address) (bool, error) {
	values, err := c.Call(ctx, "markets", cToken)
	if err != nil {
		return false, err
	}
	return contract.Out[bool](values, 0)
}

// CollateralFactor returns collateralFactorMantissa, scaled by 1e18.
func (c *Comptroller) CollateralFactor(ctx context.Context, cToken common.Address) (*big.Int, error) {
	values, err := c.Call(ctx, "markets", cToken)
	if err != nil {
		return nil, err
	}
	return contract.Out[*big.Int](values, 1)
}

// AssetsIn lists the markets account has entered.
func (c *Comptroller) AssetsIn(ctx context.Context, account common.Address) ([]common.Address, error) {
	if account == (common.Address{}) {
		account = c.Engine().Address()
	}
	return c.addresses(ctx, "getAssetsIn", account)
}

func (c *Comptroller) addresses(ctx context.Context, method string, args ...any) ([]common.Address, error) {
	values, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return contract.Out[[]common.Address](values, 0)
}

// EnterMarkets enables the given markets as collateral.
func (c *Comptroller) EnterMarkets(ctx context.Context, cTokens []common.Address, opts txbuilder.BuildOptions) (common.Hash, error) {
	return c.Transact(ctx, "enterMarkets", nil, opts, cTokens)
}

func (c *Comptroller) ExitMarket(ctx context.Context, cToken common.Address, opts txbuilder.BuildOptions) (common.Hash, error) {
	return c.Transact(ctx, "exitMarket", nil, opts, cToken)
}

// SupportMarket lists a market. Only the comptroller admin may call it.
func (c *Comptroller) SupportMarket(ctx context.Context, cToken common.Address, opts txbuilder.BuildOptions) (common.Hash, error) {
	return c.Transact(ctx, "_supportMarket", nil, opts, cToken)
}
