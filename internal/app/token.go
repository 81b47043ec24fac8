package app

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"web3client/internal/erc20"
	"web3client/internal/networks"
)

// Token binds an ERC-20 by contract address, or by symbol from the token
// table of the configured network. Table tokens carry their decimals.
func (a *App) Token(value string) (*erc20.Token, error) {
	if common.IsHexAddress(value) {
		return erc20.New(a.client, common.HexToAddress(value), a.ABIDirs())
	}
	if a.cfg.Network == "" {
		return nil, errors.New("token symbols need a configured network")
	}
	t, err := networks.LookupToken(a.cfg.Network, value)
	if err != nil {
		return nil, err
	}
	return erc20.New(a.client, t.Address, a.ABIDirs(), erc20.WithDecimals(t.Decimals))
}
