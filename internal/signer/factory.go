package signer

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"web3client/internal/config"
)

// ErrNoSigner means the config names neither a private key nor a keystore.
var ErrNoSigner = errors.New("no signer configured")

// FromConfig prefers the private key and falls back to the keystore.
func FromConfig(cfg *config.Config) (Signer, error) {
	if strings.TrimSpace(cfg.Signer.PrivateKey) != "" {
		return NewKeySigner(cfg.Signer.PrivateKey)
	}
	if strings.TrimSpace(cfg.Signer.KeystoreDir) == "" {
		return nil, ErrNoSigner
	}
	ks, err := OpenKeystore(cfg.Signer.KeystoreDir, cfg.Passphrase())
	if err != nil {
		return nil, err
	}
	var addr common.Address
	if cfg.Signer.Address != "" {
		addr = common.HexToAddress(cfg.Signer.Address)
	}
	return ks.Signer(addr)
}
