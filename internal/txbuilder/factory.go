package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"web3client/internal/config"
)

// ConfigFromFile maps the tx section of cfg onto a BuilderConfig.
func ConfigFromFile(cfg *config.Config) (BuilderConfig, error) {
	out := BuilderConfig{GasLimitMultiplier: cfg.Tx.GasLimitMultiplier}
	if cfg.ChainID != 0 {
		out.ChainID = new(big.Int).SetUint64(cfg.ChainID)
	}
	if t := cfg.TxType(); t != nil {
		txType := TxType(*t)
		out.TxType = &txType
	}
	tip, err := GweiToWei(decimal.NewFromFloat(cfg.Tx.MaxPriorityFeeGwei))
	if err != nil {
		return BuilderConfig{}, fmt.Errorf("max_priority_fee_gwei: %w", err)
	}
	out.Fees.PriorityFee = tip
	if cfg.Tx.MaxFeeCeilingGwei > 0 {
		ceiling, err := GweiToWei(decimal.NewFromFloat(cfg.Tx.MaxFeeCeilingGwei))
		if err != nil {
			return BuilderConfig{}, fmt.Errorf("max_fee_ceiling_gwei: %w", err)
		}
		out.Fees.Ceiling = ceiling
	}
	return out, nil
}
