package txbuilder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"web3client/internal/node"
)

// ChainClient is the subset of node.Client the builder reads from.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlock(ctx context.Context) (*node.Block, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, args node.CallArgs) (uint64, error)
}
