package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"web3client/internal/api"
	"web3client/internal/subscribe"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		sf     subscribeFlags
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, optionally following a subscription alongside",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return api.NewServer(a).Start(ctx)
			})
			if follow {
				g.Go(func() error {
					return runSubscription(ctx, a, &sf)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "also run a subscription configured by the subscribe flags")
	sf.register(cmd, string(subscribe.NewHeads))
	return cmd
}
