package txbuilder

import (
	"errors"
	"fmt"
	"math/big"

	"web3client/internal/node"
)

var (
	ErrUnsupportedTransactionType = errors.New("unsupported transaction type")
	ErrTransactionTooExpensive    = errors.New("transaction too expensive")
)

type UnsupportedTransactionTypeError struct {
	Type TxType
}

func (e *UnsupportedTransactionTypeError) Error() string {
	return fmt.Sprintf("unsupported transaction type %d", e.Type)
}

func (e *UnsupportedTransactionTypeError) Unwrap() error {
	return ErrUnsupportedTransactionType
}

// TransactionTooExpensiveError reports a fee above the configured ceiling.
// Both values are per unit of gas, in wei.
type TransactionTooExpensiveError struct {
	Fee     *big.Int
	Ceiling *big.Int
}

func (e *TransactionTooExpensiveError) Error() string {
	return fmt.Sprintf("transaction too expensive: fee %s wei exceeds ceiling %s wei", e.Fee, e.Ceiling)
}

func (e *TransactionTooExpensiveError) Unwrap() error {
	return ErrTransactionTooExpensive
}

type EstimateGasError struct {
	Err  error
	Args node.CallArgs
}

func (e *EstimateGasError) Error() string {
	if e == nil || e.Err == nil {
		return "estimate gas failed"
	}
	return "estimate gas failed: " + e.Err.Error()
}

func (e *EstimateGasError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
