package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"web3client/internal/client"
	"web3client/internal/txbuilder"
)

func newSendCmd(flags *rootFlags) *cobra.Command {
	var (
		wait    bool
		gas     uint64
		nonce   int64
		tipGwei string
	)
	cmd := &cobra.Command{
		Use:   "send <to> <ether>",
		Short: "Send a native value transfer from the configured signer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			to := common.HexToAddress(args[0])
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			opts := txbuilder.BuildOptions{Gas: gas}
			if nonce >= 0 {
				n := uint64(nonce)
				opts.Nonce = &n
			}
			if tipGwei != "" {
				tip, err := decimal.NewFromString(tipGwei)
				if err != nil {
					return fmt.Errorf("invalid tip %q: %w", tipGwei, err)
				}
				if opts.PriorityFee, err = txbuilder.GweiToWei(tip); err != nil {
					return err
				}
			}

			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			c := a.Client()
			hash, err := c.SendEther(cmd.Context(), to, amount, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash.Hex())
			if !wait {
				return nil
			}

			r, err := c.WaitForReceipt(cmd.Context(), hash)
			if err != nil {
				return err
			}
			_, fee := client.GasSpent(r)
			a.Logger().Info("transaction mined",
				zap.String("hash", hash.Hex()),
				zap.Bool("succeeded", r.Succeeded()),
				zap.Uint64("gas_used", uint64(r.GasUsed)),
				zap.String("fee_ether", fee.String()),
			)
			if !r.Succeeded() {
				return fmt.Errorf("transaction %s reverted", hash.Hex())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the receipt")
	cmd.Flags().Uint64Var(&gas, "gas", 0, "gas limit; estimated when zero")
	cmd.Flags().Int64Var(&nonce, "nonce", -1, "explicit nonce; taken from the nonce provider when negative")
	cmd.Flags().StringVar(&tipGwei, "tip-gwei", "", "priority fee in gwei for dynamic fee transactions")
	return cmd
}
