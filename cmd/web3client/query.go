package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"web3client/internal/txbuilder"
)

func newBlockCmd(flags *rootFlags) *cobra.Command {
	var pending bool
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Print the latest block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			c := a.Client()
			fetch := c.LatestBlock
			if pending {
				fetch = c.PendingBlock
			}
			b, err := fetch(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), b)
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "print the pending block instead")
	return cmd
}

// accountArg parses an optional address argument. Without one the signer's
// account is used.
func accountArg(args []string, i int) (common.Address, error) {
	if len(args) <= i {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(args[i]) {
		return common.Address{}, fmt.Errorf("invalid address %q", args[i])
	}
	return common.HexToAddress(args[i]), nil
}

func newBalanceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Print the native balance of an account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := accountArg(args, 0)
			if err != nil {
				return err
			}
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			c := a.Client()
			wei, err := c.Balance(cmd.Context(), addr)
			if err != nil {
				return err
			}
			if addr == (common.Address{}) {
				addr = c.Address()
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"address": addr.Hex(),
				"wei":     wei.String(),
				"ether":   txbuilder.WeiToEther(wei).String(),
			})
		},
	}
}

func newNonceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "nonce [address]",
		Short: "Print the mined transaction count of an account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := accountArg(args, 0)
			if err != nil {
				return err
			}
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			n, err := a.Client().Nonce(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newTokenBalanceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "token-balance <token> [address]",
		Short: "Print an ERC-20 balance; token is a contract address or a symbol of the network",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := accountArg(args, 1)
			if err != nil {
				return err
			}
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			tok, err := a.Token(args[0])
			if err != nil {
				return err
			}
			wei, err := tok.BalanceInWei(cmd.Context(), owner)
			if err != nil {
				return err
			}
			decimals, err := tok.Decimals(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"token":    tok.Address().Hex(),
				"wei":      wei.String(),
				"balance":  txbuilder.FormatUnits(wei, decimals).String(),
				"decimals": decimals,
			})
		},
	}
}
