package main

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web3client/internal/subscribe"
)

const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

func TestSubscribeFlagsOptions(t *testing.T) {
	f := subscribeFlags{
		kind:      "logs",
		addresses: []string{"0xdAC17F958D2ee523a2206206994597C13D831ec7"},
		topics:    []string{transferTopic, "*", transferTopic + "|" + transferTopic},
		once:      true,
	}
	opts, err := f.options()
	require.NoError(t, err)
	assert.Equal(t, subscribe.Logs, opts.Kind)
	assert.True(t, opts.Once)
	assert.Equal(t, []common.Address{common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")}, opts.LogFilter.Addresses)
	require.Len(t, opts.LogFilter.Topics, 3)
	assert.Nil(t, opts.LogFilter.Topics[1])
	assert.Len(t, opts.LogFilter.Topics[2], 2)
	assert.False(t, opts.TxFilter.Active())
}

func TestSubscribeFlagsTxFilter(t *testing.T) {
	f := subscribeFlags{
		kind:     "newPendingTransactions",
		to:       []string{"0x240AbF8ACB28205B92D39181e2Dab0B0D8eA6e5D"},
		minValue: "0.5",
	}
	opts, err := f.options()
	require.NoError(t, err)
	require.True(t, opts.TxFilter.Active())
	assert.Equal(t, "0.5", opts.TxFilter.MinValue.String())
	assert.Nil(t, opts.TxFilter.MaxValue)
}

func TestSubscribeFlagsRejectBadInput(t *testing.T) {
	for name, f := range map[string]subscribeFlags{
		"kind":    {kind: "blocks"},
		"address": {kind: "logs", addresses: []string{"0x12"}},
		"topic":   {kind: "logs", topics: []string{"0xabc"}},
		"value":   {kind: "newPendingTransactions", maxValue: "lots"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.options()
			assert.Error(t, err)
		})
	}
	_, err := (&subscribeFlags{kind: "blocks"}).options()
	assert.ErrorIs(t, err, subscribe.ErrUnsupportedNotificationKind)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"block", "balance", "nonce", "token-balance", "send", "subscribe", "serve"})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"send", "not-an-address", "1"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address")
}

func TestAccountArg(t *testing.T) {
	addr, err := accountArg(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, addr)

	addr, err = accountArg([]string{"0x240AbF8ACB28205B92D39181e2Dab0B0D8eA6e5D"}, 0)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x240AbF8ACB28205B92D39181e2Dab0B0D8eA6e5D"), addr)

	_, err = accountArg([]string{"x", "nope"}, 1)
	assert.Error(t, err)
}
