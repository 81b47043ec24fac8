package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web3client/internal/app"
	"web3client/internal/config"
	"web3client/internal/contract"
	"web3client/internal/node"
	"web3client/internal/node/nodetest"
)

const (
	holder   = "0x1111111111111111111111111111111111111111"
	usdtAddr = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	txHash   = "0x8631361df65445a40fc46cff4625a2c070e618733d9ebdf31a31535276225b85"
)

var decimalsSelector = hexutil.Encode(contract.MustLoadABI(contract.ERC20ABI).Methods["decimals"].ID)

func word(v int64) string {
	return hexutil.Encode(common.LeftPadBytes(big.NewInt(v).Bytes(), 32))
}

func testNode(t *testing.T) *nodetest.Fake {
	erc20ABI := contract.MustLoadABI(contract.ERC20ABI)
	input, err := erc20ABI.Pack("transfer", common.HexToAddress(holder), big.NewInt(70000000))
	require.NoError(t, err)
	to := common.HexToAddress(usdtAddr)

	return nodetest.New().
		Set("eth_getBalance", "0xde0b6b3a7640000").
		Handle("eth_call", func(args []any) (any, error) {
			var call node.CallArgs
			if err := nodetest.DecodeArg(args, 0, &call); err != nil {
				return nil, err
			}
			if hexutil.Encode(call.Data) == decimalsSelector {
				return word(6), nil
			}
			return word(2500000), nil
		}).
		Handle("eth_getTransactionByHash", func(args []any) (any, error) {
			var hash common.Hash
			if err := nodetest.DecodeArg(args, 0, &hash); err != nil {
				return nil, err
			}
			if hash != common.HexToHash(txHash) {
				return nil, nil
			}
			return node.Transaction{
				Hash:  hash,
				From:  common.HexToAddress("0xF693b5C8F2d8dE8a0F7BB4a4D0F5F6D7b6d1c0a1"),
				To:    &to,
				Nonce: 1,
				Gas:   58551,
				Value: (*hexutil.Big)(big.NewInt(0)),
				Input: input,
				Type:  2,
			}, nil
		})
}

func newTestServer(t *testing.T, body string) (*Server, *nodetest.Fake) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	fake := testNode(t)
	a, err := app.Open(context.Background(), cfg, nil, app.WithCaller(fake))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return NewServer(a), fake
}

func get(t *testing.T, h http.Handler, target string, header ...string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestAuth(t *testing.T) {
	s, _ := newTestServer(t, "network: bnb\napi:\n  auth_token: secret\n")
	h := s.Handler()

	code, body := get(t, h, "/health")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", body["error"])

	code, body = get(t, h, "/health", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "56", body["chain_id"])

	code, _ = get(t, h, "/health", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get(t, h, "/health", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestBalances(t *testing.T) {
	s, fake := newTestServer(t, "network: bnb\n")
	h := s.Handler()

	code, body := get(t, h, "/balances")
	assert.Equal(t, http.StatusBadRequest, code, "no signer and no address")
	assert.Equal(t, "address is required", body["error"])

	code, body = get(t, h, "/balances?address=nope")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid address", body["error"])

	code, body = get(t, h, "/balances?address="+holder)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1000000000000000000", body["eth_wei"])
	assert.Equal(t, "1", body["eth"])

	code, body = get(t, h, "/balances?address="+holder+"&token="+usdtAddr)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2500000", body["balance_wei"])
	assert.Equal(t, "2.5", body["balance"])
	assert.EqualValues(t, 6, body["decimals"])
	assert.Equal(t, 2, fake.Count("eth_call"))

	code, body = get(t, h, "/balances?address="+holder+"&token=BUSD")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0x"+strings.ToLower("e9e7CEA3DedcA5984780Bafc599bD69ADd087D56"), strings.ToLower(body["token"].(string)))
	assert.EqualValues(t, 18, body["decimals"])
	assert.Equal(t, 3, fake.Count("eth_call"), "table decimals skip the decimals call")

	code, _ = get(t, h, "/balances?address="+holder+"&token=NOPE")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBalancesUpstreamFailure(t *testing.T) {
	s, fake := newTestServer(t, "network: bnb\n")
	fake.Fail("eth_getBalance", assert.AnError)

	code, body := get(t, s.Handler(), "/balances?address="+holder)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body["error"], assert.AnError.Error())
}

func TestTx(t *testing.T) {
	s, _ := newTestServer(t, "network: bnb\n")
	h := s.Handler()

	code, body := get(t, h, "/tx?hash="+txHash)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(58551), body["gas"])
	method := body["method"].(map[string]any)
	assert.Equal(t, "transfer", method["name"])
	assert.Equal(t, "70000000", method["args"].(map[string]any)["amount"])

	code, _ = get(t, h, "/tx?hash=0x01")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get(t, h, "/tx?hash=0x"+strings.Repeat("ab", 32))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRPCLogAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, "network: bnb\n")
	code, _ := get(t, s.Handler(), "/rpc-log")
	assert.Equal(t, http.StatusNotFound, code, "disabled")

	s, _ = newTestServer(t, "network: bnb\nrpc_log:\n  enabled: true\n  metrics: true\n")
	h := s.Handler()
	code, _ = get(t, h, "/balances?address="+holder)
	require.Equal(t, http.StatusOK, code)

	code, body := get(t, h, "/rpc-log")
	require.Equal(t, http.StatusOK, code)
	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "eth_getBalance", entries[0].(map[string]any)["method"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `web3client_rpc_calls_total{method="eth_getBalance",status="ok"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, "network: bnb\n")
	req := httptest.NewRequest(http.MethodPost, "/balances", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFees(t *testing.T) {
	s, fake := newTestServer(t, "network: bnb\n")
	fake.Set("eth_gasPrice", "0xb2d05e00")

	code, body := get(t, s.Handler(), "/fees")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["type"], "bnb pins access list transactions")
	assert.Equal(t, "3000000000", body["gas_price"])
	assert.Equal(t, "3", body["effective_gwei"])
	assert.NotContains(t, body, "max_fee_per_gas")

	s, fake = newTestServer(t, "network: bnb\ntx:\n  max_fee_ceiling_gwei: 2\n")
	fake.Set("eth_gasPrice", "0xb2d05e00")
	code, body = get(t, s.Handler(), "/fees")
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["error"], "exceeds ceiling")
}
