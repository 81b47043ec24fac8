package networks

import (
	"context"
	"errors"

	"web3client/internal/client"
	"web3client/internal/erc20"
	"web3client/internal/node"
)

// Options tunes the clients made by NewClient.
type Options struct {
	// NodeURI overrides the network's first public endpoint.
	NodeURI string
	// Caller skips dialing altogether.
	Caller      node.Caller
	Dial        []node.DialOption
	Middlewares []node.Middleware
	Client      []client.Option
}

// NewClient returns a client for the named network with chain id and
// transaction type pinned. The returned func closes the connection.
func NewClient(ctx context.Context, name string, opts Options) (*client.Client, func(), error) {
	n, err := Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	caller, closeFn, err := connect(ctx, n, opts)
	if err != nil {
		return nil, nil, err
	}
	copts := append([]client.Option{client.WithBuilderConfig(n.BuilderConfig())}, opts.Client...)
	return client.New(node.NewClient(caller, opts.Middlewares...), copts...), closeFn, nil
}

// NewTokenClient is NewClient plus the token called symbol on that network,
// bound to the client with its known decimals.
func NewTokenClient(ctx context.Context, network, symbol string, opts Options) (*erc20.Token, *client.Client, func(), error) {
	t, err := LookupToken(network, symbol)
	if err != nil {
		return nil, nil, nil, err
	}
	c, closeFn, err := NewClient(ctx, network, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	tok, err := erc20.New(c, t.Address, nil, erc20.WithDecimals(t.Decimals))
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return tok, c, closeFn, nil
}

func connect(ctx context.Context, n Network, opts Options) (node.Caller, func(), error) {
	if opts.Caller != nil {
		return opts.Caller, func() {}, nil
	}
	uri := opts.NodeURI
	if uri == "" {
		uri = n.FirstRPC()
	}
	if uri == "" {
		return nil, nil, errors.New("network " + n.Name + " has no rpc endpoint")
	}
	rpcClient, err := node.Dial(ctx, uri, opts.Dial...)
	if err != nil {
		return nil, nil, err
	}
	return rpcClient, rpcClient.Close, nil
}
