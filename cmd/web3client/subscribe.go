package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"web3client/internal/app"
	"web3client/internal/node"
	"web3client/internal/subscribe"
)

type subscribeFlags struct {
	kind       string
	addresses  []string
	topics     []string
	from       []string
	to         []string
	minValue   string
	maxValue   string
	once       bool
	concurrent bool
	out        string
}

func (f *subscribeFlags) register(cmd *cobra.Command, kindDefault string) {
	fs := cmd.Flags()
	fs.StringVar(&f.kind, "kind", kindDefault, "newHeads, newPendingTransactions, logs or alchemy_newPendingTransactions")
	fs.StringSliceVar(&f.addresses, "address", nil, "log filter contract address (repeatable)")
	fs.StringSliceVar(&f.topics, "topic", nil, "log filter topic by position; '*' matches any, '|' separates alternatives")
	fs.StringSliceVar(&f.from, "from", nil, "only transactions sent by these addresses")
	fs.StringSliceVar(&f.to, "to", nil, "only transactions sent to these addresses")
	fs.StringVar(&f.minValue, "min-value", "", "minimum transaction value in ether")
	fs.StringVar(&f.maxValue, "max-value", "", "maximum transaction value in ether")
	fs.BoolVar(&f.once, "once", false, "stop after the first matching notification")
	fs.BoolVar(&f.concurrent, "concurrent", false, "handle notifications in parallel")
	fs.StringVar(&f.out, "out", "-", "JSONL output file, - for stdout")
}

func parseAddresses(values []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(values))
	for _, v := range values {
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("invalid address %q", v)
		}
		out = append(out, common.HexToAddress(v))
	}
	return out, nil
}

func parseTopics(values []string) ([][]common.Hash, error) {
	out := make([][]common.Hash, 0, len(values))
	for _, v := range values {
		if v == "" || v == "*" {
			out = append(out, nil)
			continue
		}
		var alts []common.Hash
		for _, alt := range strings.Split(v, "|") {
			if len(common.FromHex(alt)) != common.HashLength {
				return nil, fmt.Errorf("invalid topic %q", alt)
			}
			alts = append(alts, common.HexToHash(alt))
		}
		out = append(out, alts)
	}
	return out, nil
}

func parseEther(v string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", v, err)
	}
	return &d, nil
}

func (f *subscribeFlags) options() (subscribe.Options, error) {
	var opts subscribe.Options
	kind, err := subscribe.ParseKind(f.kind)
	if err != nil {
		return opts, err
	}
	opts.Kind = kind
	opts.Once = f.once
	if opts.LogFilter.Addresses, err = parseAddresses(f.addresses); err != nil {
		return opts, err
	}
	if opts.LogFilter.Topics, err = parseTopics(f.topics); err != nil {
		return opts, err
	}
	if opts.TxFilter.From, err = parseAddresses(f.from); err != nil {
		return opts, err
	}
	if opts.TxFilter.To, err = parseAddresses(f.to); err != nil {
		return opts, err
	}
	if opts.TxFilter.MinValue, err = parseEther(f.minValue); err != nil {
		return opts, err
	}
	if opts.TxFilter.MaxValue, err = parseEther(f.maxValue); err != nil {
		return opts, err
	}
	return opts, nil
}

// runSubscription writes one record per matched notification until ctx ends,
// the subscription is satisfied or the callback fails.
func runSubscription(ctx context.Context, a *app.App, f *subscribeFlags) error {
	opts, err := f.options()
	if err != nil {
		return err
	}
	w, err := app.OpenJSONL(f.out)
	if err != nil {
		return err
	}
	defer w.Close()

	log := a.Logger().Named("subscribe")
	opts.OnSubscribe = func(id string) {
		log.Info("subscribed", zap.String("kind", string(opts.Kind)), zap.String("id", id))
	}
	opts.OnFetchError = func(err error, payload json.RawMessage) {
		log.Debug("transaction fetch failed", zap.Error(err), zap.ByteString("payload", payload))
	}
	opts.OnConnectionClosed = func(err error) error {
		log.Warn("connection closed, reconnecting", zap.Error(err))
		return nil
	}

	sub := a.Subscriber(opts)
	cb := func(ctx context.Context, payload json.RawMessage, kind subscribe.Kind, tx *node.Transaction) error {
		return w.Write(app.NewRecord(a.Decoder(), payload, kind, tx))
	}
	if f.concurrent {
		err = sub.RunConcurrent(ctx, cb)
	} else {
		err = sub.RunSync(ctx, cb)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func newSubscribeCmd(flags *rootFlags) *cobra.Command {
	var sf subscribeFlags
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Follow an eth_subscribe feed and write notifications as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a)
			return runSubscription(cmd.Context(), a, &sf)
		},
	}
	sf.register(cmd, string(subscribe.NewHeads))
	return cmd
}
