package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"web3client/internal/node"
	"web3client/internal/txbuilder"
)

var ErrUnknownMethod = errors.New("unknown contract method")

// Engine performs the reads and writes of a Contract. *client.Client
// implements it.
type Engine interface {
	Address() common.Address
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Transact(ctx context.Context, to common.Address, value *big.Int, data []byte, opts txbuilder.BuildOptions) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*node.Receipt, error)
}

// Contract is an ABI bound to one address.
type Contract struct {
	engine  Engine
	address common.Address
	abi     abi.ABI
}

func New(engine Engine, address common.Address, parsed abi.ABI) *Contract {
	return &Contract{engine: engine, address: address, abi: parsed}
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) ABI() abi.ABI {
	return c.abi
}

func (c *Contract) Engine() Engine {
	return c.engine
}

// Pack encodes a call to method.
func (c *Contract) Pack(method string, args ...any) ([]byte, error) {
	if _, ok := c.abi.Methods[method]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// Call runs method via eth_call and returns its decoded outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.engine.Call(ctx, c.address, data)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// Transact signs and sends a call to method. value is in wei and may be nil.
func (c *Contract) Transact(ctx context.Context, method string, value *big.Int, opts txbuilder.BuildOptions, args ...any) (common.Hash, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	if value != nil && value.Sign() > 0 && !c.abi.Methods[method].IsPayable() {
		return common.Hash{}, fmt.Errorf("%s is not payable", method)
	}
	hash, err := c.engine.Transact(ctx, c.address, value, data, opts)
	if err != nil {
		return common.Hash{}, fmt.Errorf("transact %s: %w", method, err)
	}
	return hash, nil
}

// CallBigInt is Call for methods returning a single uint.
func (c *Contract) CallBigInt(ctx context.Context, method string, args ...any) (*big.Int, error) {
	values, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return Out[*big.Int](values, 0)
}

// Out converts the i-th decoded output to T.
func Out[T any](values []any, i int) (T, error) {
	var zero T
	if i >= len(values) {
		return zero, fmt.Errorf("output %d missing, got %d values", i, len(values))
	}
	v, ok := values[i].(T)
	if !ok {
		return zero, fmt.Errorf("output %d is %T, want %T", i, values[i], zero)
	}
	return v, nil
}
