package node

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web3client/internal/node/nodetest"
)

func TestTransportFor(t *testing.T) {
	cases := []struct {
		uri  string
		want Transport
		err  bool
	}{
		{uri: "https://cloudflare-eth.com", want: TransportHTTP},
		{uri: "http://localhost:8545", want: TransportHTTP},
		{uri: "wss://mainnet.example/ws", want: TransportWebsocket},
		{uri: "ws://127.0.0.1:8546", want: TransportWebsocket},
		{uri: "/tmp/geth.ipc", want: TransportIPC},
		{uri: "ftp://example.com", err: true},
		{uri: "localhost", err: true},
	}
	for _, tc := range cases {
		t.Run(tc.uri, func(t *testing.T) {
			got, err := TransportFor(tc.uri)
			if tc.err {
				assert.ErrorIs(t, err, ErrUnsupportedScheme)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDialRejectsUnknownScheme(t *testing.T) {
	_, err := Dial(context.Background(), "udp://example.com")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestDialRetriesWithUserAgent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		assert.Equal(t, "indexer/1.0", r.Header.Get("User-Agent"))
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x1"})
	}))
	defer srv.Close()

	rpcClient, err := Dial(context.Background(), srv.URL,
		WithRetryMax(1),
		WithRetryWait(time.Millisecond, time.Millisecond),
		WithUserAgent("indexer/1.0"))
	require.NoError(t, err)
	defer rpcClient.Close()

	id, err := NewClient(rpcClient).ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id.Int64())
	assert.Equal(t, int32(2), hits.Load())
}

func TestDialHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "eth_chainId", req.Method)
		assert.Equal(t, "web3client", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x2105"})
	}))
	defer srv.Close()

	rpcClient, err := Dial(context.Background(), srv.URL, WithRetryMax(0))
	require.NoError(t, err)
	defer rpcClient.Close()

	id, err := NewClient(rpcClient).ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8453), id.Int64())
}

func TestBlockByNumber(t *testing.T) {
	fake := nodetest.New().Handle("eth_getBlockByNumber", func(args []any) (any, error) {
		if args[0] == TagPending {
			return nil, nil
		}
		return map[string]any{
			"number":        "0x10",
			"hash":          common.HexToHash("0x01").Hex(),
			"timestamp":     "0x64",
			"baseFeePerGas": "0x64",
			"transactions":  []string{},
		}, nil
	})
	c := NewClient(fake)

	block, err := c.LatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(16), block.Number.ToInt().Int64())
	assert.Equal(t, big.NewInt(100), block.BaseFee())

	_, err = c.BlockByNumber(context.Background(), TagPending)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlockWithoutBaseFee(t *testing.T) {
	fake := nodetest.New().Set("eth_getBlockByNumber", map[string]any{"number": "0x1", "transactions": []string{}})
	block, err := NewClient(fake).LatestBlock(context.Background())
	require.NoError(t, err)
	assert.Nil(t, block.BaseFee())
}

func TestEstimateGasSendsOnlySetFields(t *testing.T) {
	var seen map[string]any
	fake := nodetest.New().Handle("eth_estimateGas", func(args []any) (any, error) {
		require.NoError(t, nodetest.DecodeArg(args, 0, &seen))
		return "0x5208", nil
	})
	from := common.HexToAddress("0x1")
	to := common.HexToAddress("0x2")
	gas, err := NewClient(fake).EstimateGas(context.Background(), CallArgs{
		From:  &from,
		To:    &to,
		Value: (*hexutil.Big)(big.NewInt(10)),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), gas)
	assert.Len(t, seen, 3)
	assert.Contains(t, seen, "from")
	assert.Contains(t, seen, "to")
	assert.Contains(t, seen, "value")
}

func TestSendRawTransactionEncodesHex(t *testing.T) {
	want := common.HexToHash("0xabc")
	fake := nodetest.New().Handle("eth_sendRawTransaction", func(args []any) (any, error) {
		assert.Equal(t, "0x02f0", args[0])
		return want.Hex(), nil
	})
	got, err := NewClient(fake).SendRawTransaction(context.Background(), []byte{0x02, 0xf0})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWaitForTransactionRetriesNotFound(t *testing.T) {
	hash := common.HexToHash("0x1234")
	calls := 0
	fake := nodetest.New().Handle("eth_getTransactionByHash", func(args []any) (any, error) {
		calls++
		if calls < 3 {
			return nil, nil
		}
		return map[string]any{
			"hash":  hash.Hex(),
			"from":  "0x0000000000000000000000000000000000000001",
			"nonce": "0x1",
			"gas":   "0x5208",
			"value": "0x64",
			"input": "0x",
			"type":  "0x2",
		}, nil
	})
	tx, err := NewClient(fake).WaitForTransaction(context.Background(), hash, time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, hash, tx.Hash)
	assert.Equal(t, big.NewInt(100), tx.ValueWei())
	assert.True(t, tx.Pending())
	assert.Equal(t, 3, calls)
}

func TestWaitForReceiptTimeout(t *testing.T) {
	fake := nodetest.New().Set("eth_getTransactionReceipt", nil)
	_, err := NewClient(fake).WaitForReceipt(context.Background(), common.HexToHash("0x1"), time.Millisecond, 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "receipt")
}

func TestWaitForTransactionSurfacesNodeError(t *testing.T) {
	boom := errors.New("boom")
	fake := nodetest.New().Fail("eth_getTransactionByHash", boom)
	_, err := NewClient(fake).WaitForTransaction(context.Background(), common.HexToHash("0x1"), time.Millisecond, time.Second)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, fake.Count("eth_getTransactionByHash"))
}

func TestReceiptGasCost(t *testing.T) {
	r := &Receipt{GasUsed: 21000, EffectiveGasPrice: (*hexutil.Big)(big.NewInt(2_000_000_000)), Status: 1}
	assert.True(t, r.Succeeded())
	assert.Equal(t, big.NewInt(42_000_000_000_000), r.GasCost())
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Caller) Caller {
			return CallerFunc(func(ctx context.Context, result any, method string, args ...any) error {
				order = append(order, name)
				return next.CallContext(ctx, result, method, args...)
			})
		}
	}
	fake := nodetest.New().Set("eth_chainId", "0x1")
	_, err := NewClient(fake, mw("outer"), nil, mw("inner")).ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}
