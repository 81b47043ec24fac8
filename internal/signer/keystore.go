package signer

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrAccountNotFound = errors.New("account not found")

// Keystore wraps a geth keystore directory unlocked by one passphrase.
type Keystore struct {
	ks         *keystore.KeyStore
	passphrase string
	dir        string
}

type KeystoreOption func(*keystoreOptions)

type keystoreOptions struct {
	scryptN, scryptP int
}

// WithLightScrypt uses the cheap scrypt parameters. Meant for tests.
func WithLightScrypt() KeystoreOption {
	return func(o *keystoreOptions) {
		o.scryptN, o.scryptP = keystore.LightScryptN, keystore.LightScryptP
	}
}

func OpenKeystore(dir string, passphrase string, opts ...KeystoreOption) (*Keystore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("keystore dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	o := keystoreOptions{scryptN: keystore.StandardScryptN, scryptP: keystore.StandardScryptP}
	for _, opt := range opts {
		opt(&o)
	}
	ks := keystore.NewKeyStore(dir, o.scryptN, o.scryptP)
	return &Keystore{ks: ks, passphrase: passphrase, dir: dir}, nil
}

func (k *Keystore) CreateAccount() (common.Address, error) {
	if k.passphrase == "" {
		return common.Address{}, errors.New("keystore passphrase is empty")
	}
	acct, err := k.ks.NewAccount(k.passphrase)
	if err != nil {
		return common.Address{}, err
	}
	return acct.Address, nil
}

// Import stores key encrypted with the keystore passphrase.
func (k *Keystore) Import(key *ecdsa.PrivateKey) (common.Address, error) {
	if k.passphrase == "" {
		return common.Address{}, errors.New("keystore passphrase is empty")
	}
	acct, err := k.ks.ImportECDSA(key, k.passphrase)
	if err != nil {
		return common.Address{}, err
	}
	return acct.Address, nil
}

func (k *Keystore) Accounts() []common.Address {
	acctList := k.ks.Accounts()
	out := make([]common.Address, 0, len(acctList))
	for _, acct := range acctList {
		out = append(out, acct.Address)
	}
	return out
}

func (k *Keystore) find(addr common.Address) (accounts.Account, error) {
	for _, acct := range k.ks.Accounts() {
		if acct.Address == addr {
			return acct, nil
		}
	}
	return accounts.Account{}, ErrAccountNotFound
}

// Signer returns a signer for addr, or for the only account when addr is
// the zero address.
func (k *Keystore) Signer(addr common.Address) (*KeystoreSigner, error) {
	if k.passphrase == "" {
		return nil, errors.New("keystore passphrase is empty")
	}
	if addr == (common.Address{}) {
		all := k.ks.Accounts()
		if len(all) != 1 {
			return nil, errors.New("keystore holds more than one account; address is required")
		}
		addr = all[0].Address
	}
	acct, err := k.find(addr)
	if err != nil {
		return nil, err
	}
	return &KeystoreSigner{ks: k.ks, acct: acct, passphrase: k.passphrase}, nil
}

func (k *Keystore) Dir() string {
	return filepath.Clean(k.dir)
}

// KeystoreSigner signs with an encrypted key, decrypting it per signature.
type KeystoreSigner struct {
	ks         *keystore.KeyStore
	acct       accounts.Account
	passphrase string
}

func (s *KeystoreSigner) Address() common.Address {
	return s.acct.Address
}

func (s *KeystoreSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if chainID == nil {
		return nil, errors.New("chainID is required")
	}
	return s.ks.SignTxWithPassphrase(s.acct, s.passphrase, tx, chainID)
}

func (s *KeystoreSigner) SignMessage(msg []byte) ([]byte, error) {
	sig, err := s.ks.SignHashWithPassphrase(s.acct, s.passphrase, accounts.TextHash(msg))
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
