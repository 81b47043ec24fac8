package node

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block tags accepted by BlockByNumber and friends.
const (
	TagLatest  = "latest"
	TagPending = "pending"
)

// BlockTag formats a block number for use as a block parameter.
func BlockTag(number uint64) string {
	return hexutil.EncodeUint64(number)
}

// Block is the header view of eth_getBlockByNumber with hashes only.
type Block struct {
	Number        *hexutil.Big   `json:"number"`
	Hash          *common.Hash   `json:"hash"`
	ParentHash    common.Hash    `json:"parentHash"`
	Timestamp     hexutil.Uint64 `json:"timestamp"`
	GasLimit      hexutil.Uint64 `json:"gasLimit"`
	GasUsed       hexutil.Uint64 `json:"gasUsed"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas,omitempty"`
	Transactions  []common.Hash  `json:"transactions"`
}

// BaseFee returns nil on chains without a fee market.
func (b *Block) BaseFee() *big.Int {
	if b == nil || b.BaseFeePerGas == nil {
		return nil
	}
	return new(big.Int).Set(b.BaseFeePerGas.ToInt())
}

// Transaction is the JSON view returned by eth_getTransactionByHash.
type Transaction struct {
	Hash                 common.Hash     `json:"hash"`
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Input                hexutil.Bytes   `json:"input"`
	Type                 hexutil.Uint64  `json:"type"`
	ChainID              *hexutil.Big    `json:"chainId,omitempty"`
	BlockHash            *common.Hash    `json:"blockHash"`
	BlockNumber          *hexutil.Big    `json:"blockNumber"`
}

func (t *Transaction) ValueWei() *big.Int {
	if t == nil || t.Value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(t.Value.ToInt())
}

// Pending reports whether the transaction is not yet in a block.
func (t *Transaction) Pending() bool {
	return t != nil && t.BlockNumber == nil
}

type Log struct {
	Address         common.Address `json:"address"`
	Topics          []common.Hash  `json:"topics"`
	Data            hexutil.Bytes  `json:"data"`
	BlockNumber     *hexutil.Big   `json:"blockNumber"`
	TransactionHash common.Hash    `json:"transactionHash"`
	LogIndex        hexutil.Uint64 `json:"logIndex"`
	Removed         bool           `json:"removed"`
}

type Receipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	BlockHash         *common.Hash    `json:"blockHash"`
	BlockNumber       *hexutil.Big    `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	Status            hexutil.Uint64  `json:"status"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	ContractAddress   *common.Address `json:"contractAddress"`
	Logs              []Log           `json:"logs"`
}

func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// GasCost is gasUsed * effectiveGasPrice in wei.
func (r *Receipt) GasCost() *big.Int {
	if r == nil || r.EffectiveGasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(uint64(r.GasUsed)), r.EffectiveGasPrice.ToInt())
}

// CallArgs is the transaction object of eth_call and eth_estimateGas. Unset
// fields are omitted from the request.
type CallArgs struct {
	From                 *common.Address `json:"from,omitempty"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
}
