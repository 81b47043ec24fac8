package app

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"web3client/internal/contract"
	"web3client/internal/node"
	"web3client/internal/subscribe"
	"web3client/internal/txbuilder"
)

// Record is one subscription notification as written to the JSONL output.
type Record struct {
	Kind       subscribe.Kind  `json:"kind"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`

	TxHash          string `json:"tx_hash,omitempty"`
	From            string `json:"from,omitempty"`
	To              string `json:"to,omitempty"`
	ValueEther      string `json:"value_eth,omitempty"`
	Nonce           uint64 `json:"nonce,omitempty"`
	Gas             uint64 `json:"gas,omitempty"`
	GasPriceWei     string `json:"gas_price_wei,omitempty"`
	MaxFeePerGasWei string `json:"max_fee_per_gas_wei,omitempty"`
	MaxPriorityFee  string `json:"max_priority_fee_wei,omitempty"`
	Type            uint64 `json:"type,omitempty"`

	Method *contract.DecodedMethod `json:"method,omitempty"`
	Event  *contract.DecodedLog    `json:"event,omitempty"`
	Errors []string                `json:"errors,omitempty"`
}

// NewRecord flattens a notification and decodes what dec knows: the
// calldata of a fetched transaction or the event of a log. dec may be nil.
func NewRecord(dec *contract.Decoder, payload json.RawMessage, kind subscribe.Kind, tx *node.Transaction) Record {
	r := Record{Kind: kind, ReceivedAt: time.Now().UTC(), Payload: payload}
	if tx != nil {
		r.TxHash = tx.Hash.Hex()
		r.From = tx.From.Hex()
		if tx.To != nil {
			r.To = tx.To.Hex()
		}
		r.ValueEther = txbuilder.WeiToEther(tx.ValueWei()).String()
		r.Nonce = uint64(tx.Nonce)
		r.Gas = uint64(tx.Gas)
		r.Type = uint64(tx.Type)
		r.GasPriceWei = bigString(tx.GasPrice)
		r.MaxFeePerGasWei = bigString(tx.MaxFeePerGas)
		r.MaxPriorityFee = bigString(tx.MaxPriorityFeePerGas)
		if dec != nil && len(tx.Input) >= 4 {
			m, err := dec.DecodeInput(tx.Input)
			if err != nil {
				r.Errors = append(r.Errors, "decode_input: "+err.Error())
			}
			r.Method = m
		}
	}
	if kind == subscribe.Logs && dec != nil {
		var l node.Log
		if err := json.Unmarshal(payload, &l); err != nil {
			r.Errors = append(r.Errors, "parse_log: "+err.Error())
			return r
		}
		ev, err := dec.DecodeLog(l)
		if err != nil {
			r.Errors = append(r.Errors, "decode_log: "+err.Error())
		}
		r.Event = ev
		if r.TxHash == "" && l.TransactionHash != (common.Hash{}) {
			r.TxHash = l.TransactionHash.Hex()
		}
	}
	return r
}

func bigString(v *hexutil.Big) string {
	if v == nil {
		return ""
	}
	return v.ToInt().String()
}
