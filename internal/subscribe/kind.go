// Package subscribe follows eth_subscribe feeds over a websocket or IPC
// connection and reconnects when the connection drops.
package subscribe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Kind is the eth_subscribe feed name.
type Kind string

const (
	NewHeads                   Kind = "newHeads"
	NewPendingTransactions     Kind = "newPendingTransactions"
	Logs                       Kind = "logs"
	AlchemyPendingTransactions Kind = "alchemy_newPendingTransactions"
)

var ErrUnsupportedNotificationKind = errors.New("unsupported notification kind")

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(s))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedNotificationKind, s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case NewHeads, NewPendingTransactions, Logs, AlchemyPendingTransactions:
		return true
	}
	return false
}

// CarriesTransaction reports whether notifications of k can be resolved to
// a transaction hash.
func (k Kind) CarriesTransaction() bool {
	return k == NewPendingTransactions || k == AlchemyPendingTransactions || k == Logs
}

// HashFromNotification extracts the transaction hash a notification refers
// to. Pending transaction payloads are the hash itself (or, for Alchemy's
// full objects, carry a hash field); log payloads carry transactionHash.
func HashFromNotification(kind Kind, payload json.RawMessage) (common.Hash, error) {
	switch kind {
	case NewPendingTransactions, AlchemyPendingTransactions:
		var hash common.Hash
		if err := json.Unmarshal(payload, &hash); err == nil {
			return hash, nil
		}
		var obj struct {
			Hash *common.Hash `json:"hash"`
		}
		if err := json.Unmarshal(payload, &obj); err != nil || obj.Hash == nil {
			return common.Hash{}, fmt.Errorf("no transaction hash in %s notification", kind)
		}
		return *obj.Hash, nil
	case Logs:
		var obj struct {
			TransactionHash *common.Hash `json:"transactionHash"`
		}
		if err := json.Unmarshal(payload, &obj); err != nil || obj.TransactionHash == nil {
			return common.Hash{}, errors.New("no transactionHash in logs notification")
		}
		return *obj.TransactionHash, nil
	default:
		return common.Hash{}, fmt.Errorf("%w: cannot extract a transaction from %q", ErrUnsupportedNotificationKind, kind)
	}
}
