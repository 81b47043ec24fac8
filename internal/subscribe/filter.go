package subscribe

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"web3client/internal/node"
	"web3client/internal/txbuilder"
)

// TxFilter gates notifications on the transaction they refer to. Unset
// checks are skipped; value bounds are inclusive and in ether.
type TxFilter struct {
	From     []common.Address
	To       []common.Address
	MinValue *decimal.Decimal
	MaxValue *decimal.Decimal
}

// Active reports whether any check is set. An active filter makes the
// subscriber fetch every notified transaction.
func (f TxFilter) Active() bool {
	return len(f.From) > 0 || len(f.To) > 0 || f.MinValue != nil || f.MaxValue != nil
}

func (f TxFilter) Match(tx *node.Transaction) bool {
	if tx == nil {
		return false
	}
	if len(f.From) > 0 && !slices.Contains(f.From, tx.From) {
		return false
	}
	if len(f.To) > 0 && (tx.To == nil || !slices.Contains(f.To, *tx.To)) {
		return false
	}
	if f.MinValue != nil || f.MaxValue != nil {
		value := txbuilder.WeiToEther(tx.ValueWei())
		if f.MinValue != nil && value.LessThan(*f.MinValue) {
			return false
		}
		if f.MaxValue != nil && value.GreaterThan(*f.MaxValue) {
			return false
		}
	}
	return true
}
