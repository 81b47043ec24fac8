// Package compound talks to Compound V2 markets and their comptroller.
// Amounts are in the smallest unit of the underlying asset.
package compound

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"web3client/internal/erc20"
	"web3client/internal/txbuilder"
)

var (
	ErrNoUnderlying   = errors.New("cEther market has no underlying token")
	ErrApprovalFailed = errors.New("approval transaction reverted")
)

// Market is implemented by both CErc20 and CEther.
type Market interface {
	Address() common.Address
	Underlying(ctx context.Context) (common.Address, error)
	ExchangeRateStored(ctx context.Context) (*big.Int, error)
	Borrowed(ctx context.Context, account common.Address) (*big.Int, error)
	Supplied(ctx context.Context, account common.Address) (*big.Int, error)

	Supply(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error)
	ApproveAndSupply(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error)
	Borrow(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error)
	Withdraw(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error)
	Repay(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error)
	ApproveAndRepay(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error)
	RepayAll(ctx context.Context, opts txbuilder.BuildOptions) (common.Hash, error)
	ApproveAndRepayAll(ctx context.Context, opts txbuilder.BuildOptions) (common.Hash, error)
}

// market holds what both cToken flavours share. A cToken is itself an
// ERC-20, so balances of the cToken come from the embedded Token.
type market struct {
	*erc20.Token
}

func (m market) account(addr common.Address) common.Address {
	if addr == (common.Address{}) {
		return m.Engine().Address()
	}
	return addr
}

func (m market) ExchangeRateStored(ctx context.Context) (*big.Int, error) {
	return m.CallBigInt(ctx, "exchangeRateStored")
}

// Borrowed returns the borrow balance of account, or of the engine's
// account for the zero address, including interest accrued up to now.
func (m market) Borrowed(ctx context.Context, account common.Address) (*big.Int, error) {
	return m.CallBigInt(ctx, "borrowBalanceCurrent", m.account(account))
}

// Supplied returns the underlying amount backing account's cTokens.
func (m market) Supplied(ctx context.Context, account common.Address) (*big.Int, error) {
	return m.CallBigInt(ctx, "balanceOfUnderlying", m.account(account))
}

func (m market) Borrow(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	return m.Transact(ctx, "borrow", nil, opts, amount)
}

// Withdraw redeems cTokens worth amount of the underlying.
func (m market) Withdraw(ctx context.Context, amount *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	return m.Transact(ctx, "redeemUnderlying", nil, opts, amount)
}

// waitSucceeded blocks until hash is mined and fails if it reverted.
func (m market) waitSucceeded(ctx context.Context, hash common.Hash) error {
	r, err := m.Engine().WaitForReceipt(ctx, hash)
	if err != nil {
		return err
	}
	if !r.Succeeded() {
		return fmt.Errorf("%w: %s", ErrApprovalFailed, hash.Hex())
	}
	return nil
}

// feesOnly keeps the fee settings of opts for a preliminary transaction.
// Nonce and gas belong to the main transaction.
func feesOnly(opts txbuilder.BuildOptions) txbuilder.BuildOptions {
	return txbuilder.BuildOptions{PriorityFee: opts.PriorityFee, GasPrice: opts.GasPrice}
}
