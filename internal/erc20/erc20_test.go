package erc20

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web3client/internal/contract"
	"web3client/internal/node"
	"web3client/internal/txbuilder"
)

var (
	usdc  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	self  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	other = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type sent struct {
	method string
	args   []any
}

// chainEngine answers eth_call from per-method results packed with the ABI.
type chainEngine struct {
	abi     abi.ABI
	results map[string][]any
	calls   []string
	sent    []sent
}

func newEngine(t *testing.T) *chainEngine {
	t.Helper()
	parsed, err := contract.LoadABI(contract.ERC20ABI)
	require.NoError(t, err)
	return &chainEngine{abi: parsed, results: map[string][]any{}}
}

func (e *chainEngine) Address() common.Address { return self }

func (e *chainEngine) Call(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	m, err := e.abi.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	e.calls = append(e.calls, m.Name)
	out, ok := e.results[m.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return m.Outputs.Pack(out...)
}

func (e *chainEngine) Transact(_ context.Context, _ common.Address, _ *big.Int, data []byte, _ txbuilder.BuildOptions) (common.Hash, error) {
	m, err := e.abi.MethodById(data[:4])
	if err != nil {
		return common.Hash{}, err
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Hash{}, err
	}
	e.sent = append(e.sent, sent{method: m.Name, args: args})
	return common.HexToHash("0x01"), nil
}

func (e *chainEngine) WaitForReceipt(context.Context, common.Hash) (*node.Receipt, error) {
	return &node.Receipt{Status: 1}, nil
}

func (e *chainEngine) count(method string) int {
	n := 0
	for _, c := range e.calls {
		if c == method {
			n++
		}
	}
	return n
}

func TestTokenReads(t *testing.T) {
	e := newEngine(t)
	e.results["decimals"] = []any{uint8(6)}
	e.results["name"] = []any{"USD Coin"}
	e.results["symbol"] = []any{"USDC"}
	e.results["balanceOf"] = []any{big.NewInt(70_000_000)}
	e.results["totalSupply"] = []any{big.NewInt(1_500_000)}

	tok, err := New(e, usdc, nil)
	require.NoError(t, err)
	ctx := context.Background()

	name, err := tok.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "USD Coin", name)
	sym, err := tok.Symbol(ctx)
	require.NoError(t, err)
	assert.Equal(t, "USDC", sym)

	bal, err := tok.Balance(ctx, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, "70", bal.String())
	supply, err := tok.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.5", supply.String())

	assert.Equal(t, 1, e.count("decimals"), "decimals is cached")
}

func TestTokenKnownDecimals(t *testing.T) {
	e := newEngine(t)
	tok, err := New(e, usdc, nil, WithDecimals(18))
	require.NoError(t, err)

	wei, err := tok.ToWei(context.Background(), decimal.RequireFromString("1.25"))
	require.NoError(t, err)
	assert.Equal(t, "1250000000000000000", wei.String())
	assert.Zero(t, e.count("decimals"))
}

func TestTokenToWeiPrecision(t *testing.T) {
	e := newEngine(t)
	tok, err := New(e, usdc, nil, WithDecimals(6))
	require.NoError(t, err)

	_, err = tok.ToWei(context.Background(), decimal.RequireFromString("0.0000001"))
	assert.Error(t, err)
}

func TestTokenDecimalsFailure(t *testing.T) {
	e := newEngine(t)
	tok, err := New(e, usdc, nil)
	require.NoError(t, err)

	_, err = tok.FromWei(context.Background(), big.NewInt(1))
	assert.ErrorContains(t, err, "execution reverted")

	e.results["decimals"] = []any{uint8(2)}
	v, err := tok.FromWei(context.Background(), big.NewInt(150))
	require.NoError(t, err)
	assert.Equal(t, "1.5", v.String())
}

func TestTokenTransferAndApprove(t *testing.T) {
	e := newEngine(t)
	tok, err := New(e, usdc, nil, WithDecimals(6))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = tok.Transfer(ctx, other, decimal.RequireFromString("70"), txbuilder.BuildOptions{})
	require.NoError(t, err)
	_, err = tok.Approve(ctx, other, decimal.RequireFromString("0.5"), txbuilder.BuildOptions{})
	require.NoError(t, err)

	require.Len(t, e.sent, 2)
	assert.Equal(t, "transfer", e.sent[0].method)
	assert.Equal(t, other, e.sent[0].args[0])
	assert.Equal(t, "70000000", e.sent[0].args[1].(*big.Int).String())
	assert.Equal(t, "approve", e.sent[1].method)
	assert.Equal(t, "500000", e.sent[1].args[1].(*big.Int).String())
}

func TestTokenAllowance(t *testing.T) {
	e := newEngine(t)
	e.results["allowance"] = []any{big.NewInt(2_000_000)}
	tok, err := New(e, usdc, nil, WithDecimals(6))
	require.NoError(t, err)

	v, err := tok.Allowance(context.Background(), common.Address{}, other)
	require.NoError(t, err)
	assert.Equal(t, "2", v.String())
}
