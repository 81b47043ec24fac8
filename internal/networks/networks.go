// Package networks holds the built-in tables of chains and well known
// tokens, and makes clients preconfigured for them.
package networks

import (
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"web3client/internal/txbuilder"
)

var (
	ErrNetworkNotFound = errors.New("network not supported")
	ErrTokenNotFound   = errors.New("token not supported")
	ErrTokenNotUnique  = errors.New("token matches more than one entry")
)

//go:embed networks.yaml
var networksYAML []byte

//go:embed tokens.yaml
var tokensYAML []byte

type Network struct {
	Name    string `yaml:"name"`
	ChainID uint64 `yaml:"chain_id"`
	TxType  uint8  `yaml:"tx_type"`
	// POA chains carry extra seal data in block headers.
	POA  bool     `yaml:"poa"`
	Coin string   `yaml:"coin"`
	RPCs []string `yaml:"rpcs"`
}

// FirstRPC returns the first public endpoint, or "" when none is listed.
func (n Network) FirstRPC() string {
	if len(n.RPCs) == 0 {
		return ""
	}
	return n.RPCs[0]
}

// BuilderConfig pins chain id and transaction type so no probing happens.
func (n Network) BuilderConfig() txbuilder.BuilderConfig {
	txType := txbuilder.TxType(n.TxType)
	return txbuilder.BuilderConfig{
		ChainID: new(big.Int).SetUint64(n.ChainID),
		TxType:  &txType,
	}
}

type Token struct {
	Symbol   string         `yaml:"symbol"`
	Network  string         `yaml:"network"`
	Address  common.Address `yaml:"-"`
	Decimals uint8          `yaml:"decimals"`
}

type tokenYAML struct {
	Token   `yaml:",inline"`
	Address string `yaml:"address"`
}

var (
	networks []Network
	tokens   []Token
)

func init() {
	var err error
	if networks, err = parseNetworks(networksYAML); err != nil {
		panic(err)
	}
	if tokens, err = parseTokens(tokensYAML); err != nil {
		panic(err)
	}
}

func parseNetworks(b []byte) ([]Network, error) {
	var out []Network
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse networks: %w", err)
	}
	return out, nil
}

func parseTokens(b []byte) ([]Token, error) {
	var raw []tokenYAML
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse tokens: %w", err)
	}
	out := make([]Token, 0, len(raw))
	for _, r := range raw {
		if !common.IsHexAddress(r.Address) {
			return nil, fmt.Errorf("token %s on %s: bad address %q", r.Symbol, r.Network, r.Address)
		}
		t := r.Token
		t.Address = common.HexToAddress(r.Address)
		out = append(out, t)
	}
	return out, nil
}

// Networks lists the supported networks.
func Networks() []Network {
	return append([]Network(nil), networks...)
}

func Lookup(name string) (Network, error) {
	for _, n := range networks {
		if n.Name == name {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("%w: %q", ErrNetworkNotFound, name)
}

func IsSupported(name string) bool {
	_, err := Lookup(name)
	return err == nil
}

// TokenFilter selects tokens. Empty fields match anything; Symbol is case
// insensitive.
type TokenFilter struct {
	Network string
	Symbol  string
}

func (f TokenFilter) match(t Token) bool {
	if f.Network != "" && f.Network != t.Network {
		return false
	}
	return f.Symbol == "" || strings.EqualFold(f.Symbol, t.Symbol)
}

func Tokens(f TokenFilter) []Token {
	return filterTokens(tokens, f)
}

func filterTokens(table []Token, f TokenFilter) []Token {
	var out []Token
	for _, t := range table {
		if f.match(t) {
			out = append(out, t)
		}
	}
	return out
}

// LookupToken returns the one token called symbol on network.
func LookupToken(network, symbol string) (Token, error) {
	return lookupToken(tokens, network, symbol)
}

func lookupToken(table []Token, network, symbol string) (Token, error) {
	if !IsSupported(network) {
		return Token{}, fmt.Errorf("%w: %q", ErrNetworkNotFound, network)
	}
	found := filterTokens(table, TokenFilter{Network: network, Symbol: symbol})
	switch len(found) {
	case 0:
		return Token{}, fmt.Errorf("%w: %s on %s", ErrTokenNotFound, symbol, network)
	case 1:
		return found[0], nil
	default:
		return Token{}, fmt.Errorf("%w: %s on %s, found %d", ErrTokenNotUnique, symbol, network, len(found))
	}
}
