package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"web3client/internal/util"
)

// Client is a typed view over the handful of eth_* methods this module uses.
type Client struct {
	caller Caller
}

// NewClient wraps c with the given middlewares, first one outermost.
func NewClient(c Caller, mws ...Middleware) *Client {
	return &Client{caller: Chain(c, mws...)}
}

// CallContext forwards a raw call through the middleware chain.
func (c *Client) CallContext(ctx context.Context, result any, method string, args ...any) error {
	return c.caller.CallContext(ctx, result, method, args...)
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var out hexutil.Big
	if err := c.caller.CallContext(ctx, &out, "eth_chainId"); err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	return out.ToInt(), nil
}

// BlockByNumber fetches a block header view. tag is "latest", "pending" or a
// hex number from BlockTag.
func (c *Client) BlockByNumber(ctx context.Context, tag string) (*Block, error) {
	var out *Block
	if err := c.caller.CallContext(ctx, &out, "eth_getBlockByNumber", tag, false); err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber: %w", err)
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (c *Client) LatestBlock(ctx context.Context) (*Block, error) {
	return c.BlockByNumber(ctx, TagLatest)
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var out hexutil.Big
	if err := c.caller.CallContext(ctx, &out, "eth_gasPrice"); err != nil {
		return nil, fmt.Errorf("eth_gasPrice: %w", err)
	}
	return out.ToInt(), nil
}

func (c *Client) TransactionCount(ctx context.Context, account common.Address, tag string) (uint64, error) {
	var out hexutil.Uint64
	if err := c.caller.CallContext(ctx, &out, "eth_getTransactionCount", account, tag); err != nil {
		return 0, fmt.Errorf("eth_getTransactionCount: %w", err)
	}
	return uint64(out), nil
}

// PendingNonceAt returns the transaction count including pending ones.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.TransactionCount(ctx, account, TagPending)
}

func (c *Client) EstimateGas(ctx context.Context, args CallArgs) (uint64, error) {
	var out hexutil.Uint64
	if err := c.caller.CallContext(ctx, &out, "eth_estimateGas", args); err != nil {
		return 0, fmt.Errorf("eth_estimateGas: %w", err)
	}
	return uint64(out), nil
}

// Call runs eth_call and returns the raw return data.
func (c *Client) Call(ctx context.Context, args CallArgs, tag string) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.caller.CallContext(ctx, &out, "eth_call", args, tag); err != nil {
		return nil, fmt.Errorf("eth_call: %w", err)
	}
	return out, nil
}

func (c *Client) Balance(ctx context.Context, account common.Address, tag string) (*big.Int, error) {
	var out hexutil.Big
	if err := c.caller.CallContext(ctx, &out, "eth_getBalance", account, tag); err != nil {
		return nil, fmt.Errorf("eth_getBalance: %w", err)
	}
	return out.ToInt(), nil
}

// SendRawTransaction submits a signed, binary encoded transaction.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var out common.Hash
	if err := c.caller.CallContext(ctx, &out, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendRawTransaction: %w", err)
	}
	return out, nil
}

func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	var out *Transaction
	if err := c.caller.CallContext(ctx, &out, "eth_getTransactionByHash", hash); err != nil {
		return nil, fmt.Errorf("eth_getTransactionByHash: %w", err)
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var out *Receipt
	if err := c.caller.CallContext(ctx, &out, "eth_getTransactionReceipt", hash); err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt: %w", err)
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

// WaitForTransaction polls eth_getTransactionByHash every interval until the
// node knows the hash or timeout elapses. Only "not found" is retried.
func (c *Client) WaitForTransaction(ctx context.Context, hash common.Hash, interval, timeout time.Duration) (*Transaction, error) {
	var tx *Transaction
	err := util.Poll(ctx, interval, timeout, isNotFound, func() error {
		var err error
		tx, err = c.TransactionByHash(ctx, hash)
		return err
	})
	if err != nil {
		return nil, pollError("transaction", hash, timeout, err)
	}
	return tx, nil
}

// WaitForReceipt polls eth_getTransactionReceipt like WaitForTransaction.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash, interval, timeout time.Duration) (*Receipt, error) {
	var receipt *Receipt
	err := util.Poll(ctx, interval, timeout, isNotFound, func() error {
		var err error
		receipt, err = c.TransactionReceipt(ctx, hash)
		return err
	})
	if err != nil {
		return nil, pollError("receipt", hash, timeout, err)
	}
	return receipt, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func pollError(what string, hash common.Hash, timeout time.Duration, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s not found after %s: %w", what, hash.Hex(), timeout, err)
	}
	return err
}
