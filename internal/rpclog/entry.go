package rpclog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"web3client/internal/contract"
	"web3client/internal/node"
)

// TxMethods are the calls whose first parameter describes a transaction.
var TxMethods = []string{"eth_sendRawTransaction", "eth_call", "eth_estimateGas"}

func IsTxMethod(method string) bool {
	return slices.Contains(TxMethods, method)
}

type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
)

// Entry is one logged request or response. A response shares its request's
// ID.
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Params    []any     `json:"params"`
	// TxData is the decoded transaction of a request, when decoding is on.
	TxData *TxData `json:"tx_data,omitempty"`

	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Elapsed time.Duration   `json:"elapsed,omitempty"`
	// Tx and Receipt are fetched after a successful eth_sendRawTransaction.
	Tx      *node.Transaction `json:"tx,omitempty"`
	Receipt *node.Receipt     `json:"receipt,omitempty"`
}

func (e Entry) OK() bool {
	return e.Kind == KindResponse && e.Error == ""
}

// TxData is a transaction recovered from request parameters. Fields the
// request did not carry stay nil.
type TxData struct {
	Hash                 *common.Hash            `json:"hash,omitempty"`
	Type                 *uint8                  `json:"type,omitempty"`
	ChainID              *big.Int                `json:"chainId,omitempty"`
	From                 *common.Address         `json:"from,omitempty"`
	To                   *common.Address         `json:"to,omitempty"`
	Nonce                *uint64                 `json:"nonce,omitempty"`
	Gas                  *uint64                 `json:"gas,omitempty"`
	GasPrice             *big.Int                `json:"gasPrice,omitempty"`
	MaxFeePerGas         *big.Int                `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int                `json:"maxPriorityFeePerGas,omitempty"`
	Value                *big.Int                `json:"value"`
	Data                 hexutil.Bytes           `json:"data,omitempty"`
	Decoded              *contract.DecodedMethod `json:"decoded,omitempty"`
}

func (d *TxData) String() string {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%+v", *d)
	}
	return string(b)
}

// ParseRawTx decodes a signed transaction and recovers its sender. Legacy
// transactions without replay protection are recovered with the Homestead
// rules.
func ParseRawTx(raw []byte) (*TxData, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode raw transaction: %w", err)
	}
	var signer types.Signer = types.HomesteadSigner{}
	if tx.Protected() {
		signer = types.LatestSignerForChainID(tx.ChainId())
	}
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}
	hash := tx.Hash()
	txType := tx.Type()
	nonce := tx.Nonce()
	gas := tx.Gas()
	d := &TxData{
		Hash:  &hash,
		Type:  &txType,
		From:  &from,
		To:    tx.To(),
		Nonce: &nonce,
		Gas:   &gas,
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	if tx.Protected() {
		d.ChainID = tx.ChainId()
	}
	if txType == types.DynamicFeeTxType {
		d.MaxFeePerGas = tx.GasFeeCap()
		d.MaxPriorityFeePerGas = tx.GasTipCap()
	} else {
		d.GasPrice = tx.GasPrice()
	}
	return d, nil
}

// ParseCallArgs maps the transaction object of eth_call or eth_estimateGas.
// A missing value is read as zero.
func ParseCallArgs(param any) (*TxData, error) {
	b, err := json.Marshal(param)
	if err != nil {
		return nil, err
	}
	var args node.CallArgs
	if err := json.Unmarshal(b, &args); err != nil {
		return nil, fmt.Errorf("decode call object: %w", err)
	}
	d := &TxData{
		From:                 args.From,
		To:                   args.To,
		GasPrice:             bigOrNil(args.GasPrice),
		MaxFeePerGas:         bigOrNil(args.MaxFeePerGas),
		MaxPriorityFeePerGas: bigOrNil(args.MaxPriorityFeePerGas),
		Value:                big.NewInt(0),
		Data:                 args.Data,
	}
	if args.Gas != nil {
		gas := uint64(*args.Gas)
		d.Gas = &gas
	}
	if args.Value != nil {
		d.Value = args.Value.ToInt()
	}
	return d, nil
}

func bigOrNil(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return v.ToInt()
}

func decodeTxData(method string, params []any) (*TxData, error) {
	if len(params) == 0 {
		return nil, errors.New("no parameters")
	}
	switch method {
	case "eth_sendRawTransaction":
		s, ok := params[0].(string)
		if !ok {
			return nil, fmt.Errorf("raw transaction is %T, want hex string", params[0])
		}
		raw, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		return ParseRawTx(raw)
	case "eth_call", "eth_estimateGas":
		return ParseCallArgs(params[0])
	}
	return nil, nil
}
