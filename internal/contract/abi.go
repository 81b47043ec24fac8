// Package contract binds ABIs to addresses and routes calls through an
// Engine.
package contract

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Bundled ABI file names.
const (
	ERC20ABI               = "erc20.json"
	CompoundCErc20ABI      = "compound_v2_cerc20.json"
	CompoundCEtherABI      = "compound_v2_ceth.json"
	CompoundComptrollerABI = "compound_v2_comptroller.json"
)

//go:embed abi/*.json
var bundled embed.FS

// ErrABINotFound matches fs.ErrNotExist.
var ErrABINotFound = fmt.Errorf("abi not found: %w", fs.ErrNotExist)

// LoadABI looks for name in dirs, then in the bundled ABIs, then relative
// to the working directory. The first match wins.
func LoadABI(name string, dirs ...string) (abi.ABI, error) {
	b, err := readABI(name, dirs)
	if err != nil {
		return abi.ABI{}, err
	}
	parsed, err := abi.JSON(bytes.NewReader(b))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi %s: %w", name, err)
	}
	return parsed, nil
}

// MustLoadABI panics on error. Only for the bundled ABIs.
func MustLoadABI(name string) abi.ABI {
	parsed, err := LoadABI(name)
	if err != nil {
		panic(err)
	}
	return parsed
}

func readABI(name string, dirs []string) ([]byte, error) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if b, err := bundled.ReadFile("abi/" + name); err == nil {
		return b, nil
	}
	b, err := os.ReadFile(name)
	if err == nil {
		return b, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrABINotFound, name)
	}
	return nil, err
}
