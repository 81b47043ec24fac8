package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"web3client/internal/app"
	"web3client/internal/config"
	"web3client/internal/logger"
)

type rootFlags struct {
	config   string
	logLevel string
	network  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "web3client",
		Short:         "Ethereum JSON-RPC client: reads, transfers and subscriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.config, "config", "config.yaml", "path to config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level")
	root.PersistentFlags().StringVar(&flags.network, "network", "", "named network (eth, bnb, avax, arb, era)")

	root.AddCommand(
		newBlockCmd(&flags),
		newBalanceCmd(&flags),
		newNonceCmd(&flags),
		newTokenBalanceCmd(&flags),
		newSendCmd(&flags),
		newSubscribeCmd(&flags),
		newServeCmd(&flags),
	)
	return root
}

// loadConfig reads the config file when present. A missing default file is
// fine: the environment alone can configure a run.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	path := flags.config
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		path = ""
	}
	// Flags go through the environment so they are in place before validation.
	if flags.network != "" {
		if err := os.Setenv(config.EnvPrefix+"_NETWORK", flags.network); err != nil {
			return nil, err
		}
	}
	if flags.logLevel != "" {
		if err := os.Setenv(config.EnvPrefix+"_LOG_LEVEL", flags.logLevel); err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

func openApp(cmd *cobra.Command, flags *rootFlags) (*app.App, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(logger.WithLevel(cfg.Log.Level), logger.WithFormat(cfg.Log.Format))
	if err != nil {
		return nil, err
	}
	a, err := app.Open(cmd.Context(), cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}

func closeApp(a *app.App) {
	_ = a.Logger().Sync()
	a.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
