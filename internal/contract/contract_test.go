package contract

import (
	"context"
	"errors"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web3client/internal/node"
	"web3client/internal/txbuilder"
)

type transactCall struct {
	to    common.Address
	value *big.Int
	data  []byte
	opts  txbuilder.BuildOptions
}

type fakeEngine struct {
	from      common.Address
	callOut   []byte
	callErr   error
	calls     [][]byte
	transacts []transactCall
}

func (f *fakeEngine) Address() common.Address { return f.from }

func (f *fakeEngine) Call(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	f.calls = append(f.calls, data)
	return f.callOut, f.callErr
}

func (f *fakeEngine) Transact(_ context.Context, to common.Address, value *big.Int, data []byte, opts txbuilder.BuildOptions) (common.Hash, error) {
	f.transacts = append(f.transacts, transactCall{to: to, value: value, data: data, opts: opts})
	return common.HexToHash("0xabc"), nil
}

func (f *fakeEngine) WaitForReceipt(context.Context, common.Hash) (*node.Receipt, error) {
	return &node.Receipt{Status: 1}, nil
}

var token = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

func TestLoadABIBundled(t *testing.T) {
	for _, name := range []string{ERC20ABI, CompoundCErc20ABI, CompoundCEtherABI, CompoundComptrollerABI} {
		parsed, err := LoadABI(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, parsed.Methods, name)
	}
	ceth := MustLoadABI(CompoundCEtherABI)
	assert.True(t, ceth.Methods["mint"].IsPayable())
	_, hasUnderlying := ceth.Methods["underlying"]
	assert.False(t, hasUnderlying)
}

func TestLoadABIDirWins(t *testing.T) {
	dir := t.TempDir()
	custom := `[{"type":"function","name":"ping","inputs":[],"outputs":[],"stateMutability":"view"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ERC20ABI), []byte(custom), 0o600))

	parsed, err := LoadABI(ERC20ABI, "", filepath.Join(dir, "missing"), dir)
	require.NoError(t, err)
	assert.Contains(t, parsed.Methods, "ping")
	assert.NotContains(t, parsed.Methods, "transfer")
}

func TestLoadABINotFound(t *testing.T) {
	_, err := LoadABI("nope.json", t.TempDir())
	assert.ErrorIs(t, err, ErrABINotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadABIBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o600))
	_, err := LoadABI("bad.json", dir)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, fs.ErrNotExist))
}

func TestContractCall(t *testing.T) {
	engine := &fakeEngine{callOut: common.LeftPadBytes(big.NewInt(6).Bytes(), 32)}
	c := New(engine, token, MustLoadABI(ERC20ABI))

	values, err := c.Call(context.Background(), "decimals")
	require.NoError(t, err)
	dec, err := Out[uint8](values, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), dec)
	assert.Equal(t, hexutil.MustDecode("0x313ce567"), engine.calls[0])

	_, err = Out[string](values, 0)
	assert.Error(t, err)
	_, err = Out[uint8](values, 1)
	assert.Error(t, err)

	_, err = c.Call(context.Background(), "mint")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestContractTransact(t *testing.T) {
	engine := &fakeEngine{}
	c := New(engine, token, MustLoadABI(ERC20ABI))
	to := common.HexToAddress("0x28c6c06298d514db089934071355e5743bf21d60")
	nonce := uint64(4)

	hash, err := c.Transact(context.Background(), "transfer", nil, txbuilder.BuildOptions{Nonce: &nonce}, to, big.NewInt(70000000))
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xabc"), hash)
	require.Len(t, engine.transacts, 1)
	assert.Equal(t, token, engine.transacts[0].to)
	assert.Equal(t, uint64(4), *engine.transacts[0].opts.Nonce)
	assert.Equal(t, "a9059cbb", common.Bytes2Hex(engine.transacts[0].data[:4]))

	_, err = c.Transact(context.Background(), "transfer", big.NewInt(1), txbuilder.BuildOptions{}, to, big.NewInt(1))
	assert.Error(t, err)
	_, err = c.Transact(context.Background(), "transfer", nil, txbuilder.BuildOptions{}, "not an address", big.NewInt(1))
	assert.Error(t, err)
}

func TestDecodeInput(t *testing.T) {
	d := NewDecoder(MustLoadABI(CompoundComptrollerABI), MustLoadABI(ERC20ABI))
	data := hexutil.MustDecode("0xa9059cbb00000000000000000000000028c6c06298d514db089934071355e5743bf21d6000000000000000000000000000000000000000000000000000000000042c1d80")

	m, err := d.DecodeInput(data)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "transfer", m.Name)
	assert.Equal(t, common.HexToAddress("0x28c6c06298d514db089934071355e5743bf21d60").Hex(), m.Args["to"])
	assert.Equal(t, "70000000", m.Args["amount"])

	m, err = d.DecodeInput([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.NoError(t, err)
	assert.Nil(t, m)

	var nilDecoder *Decoder
	m, err = nilDecoder.DecodeInput(data)
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestDecodeLog(t *testing.T) {
	parsed := MustLoadABI(ERC20ABI)
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	l := node.Log{
		Address: token,
		Topics: []common.Hash{
			parsed.Events["Transfer"].ID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(big.NewInt(5).Bytes(), 32),
	}

	decoded, err := NewDecoder(parsed).DecodeLog(l)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.Equal(t, "Transfer", decoded.Event)
	assert.Equal(t, token.Hex(), decoded.Address)
	assert.Equal(t, from.Hex(), decoded.Args["from"])
	assert.Equal(t, to.Hex(), decoded.Args["to"])
	assert.Equal(t, "5", decoded.Args["value"])
}
