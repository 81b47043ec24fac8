package txbuilder

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	gweiDecimals  = 9
	etherDecimals = 18
)

func GweiToWei(gwei decimal.Decimal) (*big.Int, error) {
	return toBaseUnits(gwei, gweiDecimals)
}

func EtherToWei(ether decimal.Decimal) (*big.Int, error) {
	return toBaseUnits(ether, etherDecimals)
}

func WeiToGwei(wei *big.Int) decimal.Decimal {
	return FormatUnits(wei, gweiDecimals)
}

func WeiToEther(wei *big.Int) decimal.Decimal {
	return FormatUnits(wei, etherDecimals)
}

// FormatUnits scales an integer amount down by decimals.
func FormatUnits(v *big.Int, decimals uint8) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -int32(decimals))
}

// ParseUnits parses a decimal string into base units, e.g. "1.5" with 6
// decimals is 1500000.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, errors.New("amount is empty")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid number format %q: %w", amount, err)
	}
	return toBaseUnits(d, decimals)
}

func toBaseUnits(d decimal.Decimal, decimals uint8) (*big.Int, error) {
	if d.IsNegative() {
		return nil, errors.New("amount must be non-negative")
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("too many decimal places: %s has more than %d", d.String(), decimals)
	}
	return scaled.BigInt(), nil
}
