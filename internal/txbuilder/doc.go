// Package txbuilder assembles unsigned transactions: chain id, type, fee
// fields, nonce and gas.
//
// Usage:
//
//	b := txbuilder.NewBuilder(client, from, txbuilder.BuilderConfig{})
//	req, err := b.BuildTransfer(ctx, to, value, txbuilder.BuildOptions{})
//	if err != nil { ... }
//	tx, err := req.ToTransaction()
//	// sign + send tx
package txbuilder
