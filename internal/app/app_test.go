package app

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web3client/internal/client"
	"web3client/internal/config"
	"web3client/internal/node"
	"web3client/internal/node/nodetest"
	"web3client/internal/subscribe"
	"web3client/internal/txbuilder"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var recipient = common.HexToAddress("0x240AbF8ACB28205B92D39181e2Dab0B0D8eA6e5D")

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func bscNode() *nodetest.Fake {
	return nodetest.New().
		Set("eth_gasPrice", "0xb2d05e00").
		Set("eth_getTransactionCount", "0x3").
		Set("eth_estimateGas", "0x5208").
		Set("eth_sendRawTransaction", "0x8631361df65445a40fc46cff4625a2c070e618733d9ebdf31a31535276225b85")
}

func TestOpenWiresNetworkLogAndNonces(t *testing.T) {
	t.Setenv("WEB3CLIENT_PRIVATE_KEY", testKey)
	cfg := loadConfig(t, `
network: bnb
tx:
  nonce_manager: memory
rpc_log:
  enabled: true
  metrics: true
`)
	fake := bscNode()
	a, err := Open(context.Background(), cfg, nil, WithCaller(fake))
	require.NoError(t, err)
	defer a.Close()

	chainID, err := a.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(56), chainID)

	c := a.Client()
	for _i := 0; _i < 2; _i++ {
		_, err = c.SendValue(context.Background(), recipient, big.NewInt(1), txbuilder.BuildOptions{})
		require.NoError(t, err)
	}
	assert.Zero(t, fake.Count("eth_chainId"))
	assert.Equal(t, 1, fake.Count("eth_getTransactionCount"), "memory nonce manager")

	sends := 0
	for _, e := range a.RPCLog().TxRequests() {
		if e.Method == "eth_sendRawTransaction" {
			sends++
			require.NotNil(t, e.TxData)
			assert.Equal(t, c.Address(), *e.TxData.From)
			assert.Equal(t, uint8(0), *e.TxData.Type, "type 1 is sent as legacy")
		}
	}
	assert.Equal(t, 2, sends)

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "web3client_rpc_calls_total")
}

func TestOpenReadOnly(t *testing.T) {
	cfg := loadConfig(t, "node:\n  uri: http://localhost:8545\n")
	a, err := Open(context.Background(), cfg, nil, WithCaller(bscNode()))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.RPCLog())
	assert.Equal(t, common.Address{}, a.Client().Address())
	_, err = a.Client().SendValue(context.Background(), recipient, big.NewInt(1), txbuilder.BuildOptions{})
	assert.ErrorIs(t, err, client.ErrNoSigner)
}

func TestOpenUnknownNetwork(t *testing.T) {
	cfg := loadConfig(t, "node:\n  uri: http://localhost:8545\n")
	cfg.Network = "nowhere"
	_, err := Open(context.Background(), cfg, nil, WithCaller(bscNode()))
	assert.Error(t, err)
}

func TestSubscriberTakesConfig(t *testing.T) {
	cfg := loadConfig(t, `
node:
  uri: http://localhost:8545
  ws_uri: ws://localhost:8546
subscribe:
  ws_timeout: 30s
`)
	a, err := Open(context.Background(), cfg, nil, WithCaller(bscNode()))
	require.NoError(t, err)
	defer a.Close()

	s := a.Subscriber(subscribe.Options{Kind: subscribe.NewHeads})
	assert.Equal(t, subscribe.Disconnected, s.State())
}

func TestNewRecordTransaction(t *testing.T) {
	a := &App{cfg: loadConfig(t, "node:\n  uri: http://localhost:8545\n")}
	dec, err := a.loadDecoder()
	require.NoError(t, err)

	input := hexutil.MustDecode("0xa9059cbb00000000000000000000000028c6c06298d514db089934071355e5743bf21d6000000000000000000000000000000000000000000000000000000000042c1d80")
	tx := &node.Transaction{
		Hash:  common.HexToHash("0x444d05672fd04d99d417ce2105f34414758bcfb0579b686197cbf829458e3477"),
		From:  recipient,
		Value: (*hexutil.Big)(big.NewInt(1_500_000_000_000_000_000)),
		Input: input,
		Type:  2,
	}
	payload, _ := json.Marshal(tx.Hash.Hex())
	r := NewRecord(dec, payload, subscribe.NewPendingTransactions, tx)

	assert.Equal(t, "1.5", r.ValueEther)
	assert.Empty(t, r.To)
	require.NotNil(t, r.Method)
	assert.Equal(t, "transfer", r.Method.Name)
	assert.Empty(t, r.GasPriceWei)
	assert.Empty(t, r.Errors)
}

func TestNewRecordLog(t *testing.T) {
	a := &App{cfg: loadConfig(t, "node:\n  uri: http://localhost:8545\n")}
	dec, err := a.loadDecoder()
	require.NoError(t, err)

	payload := json.RawMessage(`{
		"address": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		"topics": [
			"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
			"0x000000000000000000000000240abf8acb28205b92d39181e2dab0b0d8ea6e5d",
			"0x00000000000000000000000028c6c06298d514db089934071355e5743bf21d60"
		],
		"data": "0x0000000000000000000000000000000000000000000000000000000000000005",
		"transactionHash": "0x444d05672fd04d99d417ce2105f34414758bcfb0579b686197cbf829458e3477",
		"logIndex": "0x0"
	}`)
	r := NewRecord(dec, payload, subscribe.Logs, nil)
	require.NotNil(t, r.Event)
	assert.Equal(t, "Transfer", r.Event.Event)
	assert.Equal(t, "5", r.Event.Args["value"])
	assert.Equal(t, "0x444d05672fd04d99d417ce2105f34414758bcfb0579b686197cbf829458e3477", r.TxHash)

	r = NewRecord(dec, json.RawMessage(`"not a log"`), subscribe.Logs, nil)
	assert.Len(t, r.Errors, 1)
}

func TestJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf)
	require.NoError(t, w.Write(map[string]string{"a": "<b>"}))
	require.NoError(t, w.Write(map[string]int{"n": 1}))
	require.NoError(t, w.Close())
	assert.Equal(t, "{\"a\":\"<b>\"}\n{\"n\":1}\n", buf.String())

	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	fw, err := OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, fw.Write(1))
	require.NoError(t, fw.Close())
	fw, err = OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, fw.Write(2))
	require.NoError(t, fw.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, strings.Fields(string(b)))
}

func TestOpenBoundsRPCLog(t *testing.T) {
	cfg := loadConfig(t, `
network: bnb
rpc_log:
  enabled: true
  max_entries: 4
`)
	fake := bscNode().Set("eth_getBalance", "0x1")
	a, err := Open(context.Background(), cfg, nil, WithCaller(fake))
	require.NoError(t, err)
	defer a.Close()

	for _i := 0; _i < 5; _i++ {
		_, err := a.Client().Balance(context.Background(), recipient)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, fake.Count("eth_getBalance"))
	assert.Len(t, a.RPCLog().Entries(), 4)
}
