// Package client ties a node connection, a transaction builder and a signer
// into one engine that reads chain state and sends transactions.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"web3client/internal/node"
	"web3client/internal/signer"
	"web3client/internal/subscribe"
	"web3client/internal/txbuilder"
)

// ErrNoSigner is returned by operations that need a signing account.
var ErrNoSigner = signer.ErrNoSigner

type Client struct {
	node   *node.Client
	signer signer.Signer
	logger *zap.Logger

	builderCfg txbuilder.BuilderConfig
	nonces     txbuilder.NonceProvider
	builder    *txbuilder.Builder

	pollInterval time.Duration
	pollTimeout  time.Duration
}

type Option func(*Client)

func WithSigner(s signer.Signer) Option {
	return func(c *Client) {
		c.signer = s
	}
}

func WithBuilderConfig(cfg txbuilder.BuilderConfig) Option {
	return func(c *Client) {
		c.builderCfg = cfg
	}
}

// WithNonceProvider hands nonces out locally instead of asking the node on
// every build. A failed send resets the provider for the sender.
func WithNonceProvider(p txbuilder.NonceProvider) Option {
	return func(c *Client) {
		c.nonces = p
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPolling sets how transactions and receipts are awaited.
func WithPolling(interval, timeout time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = interval
		c.pollTimeout = timeout
	}
}

func New(n *node.Client, opts ...Option) *Client {
	c := &Client{
		node:         n,
		logger:       zap.NewNop(),
		pollInterval: time.Second,
		pollTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.initBuilder()
	return c
}

func (c *Client) initBuilder() {
	opts := []txbuilder.BuilderOption{txbuilder.WithLogger(c.logger)}
	if c.nonces != nil {
		opts = append(opts, txbuilder.WithNonceProvider(c.nonces))
	}
	c.builder = txbuilder.NewBuilder(c.node, c.Address(), c.builderCfg, opts...)
}

// Clone returns a copy sharing the node connection and nonce provider, with
// opts applied on top.
func (c *Client) Clone(opts ...Option) *Client {
	cp := *c
	for _, opt := range opts {
		opt(&cp)
	}
	cp.initBuilder()
	return &cp
}

func (c *Client) Node() *node.Client {
	return c.node
}

func (c *Client) Builder() *txbuilder.Builder {
	return c.builder
}

// Address is the signer's account, or the zero address without a signer.
func (c *Client) Address() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

func (c *Client) orSelf(addr common.Address) common.Address {
	if addr == (common.Address{}) {
		return c.Address()
	}
	return addr
}

// SendTransaction estimates gas if unset, signs req and broadcasts it.
func (c *Client) SendTransaction(ctx context.Context, req *txbuilder.Request) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, ErrNoSigner
	}
	if req == nil {
		return common.Hash{}, errors.New("transaction request is nil")
	}
	if err := req.Validate(); err != nil {
		return common.Hash{}, err
	}
	if req.Gas == 0 {
		if err := c.builder.EstimateGas(ctx, req); err != nil {
			c.builder.ResetNonce()
			return common.Hash{}, err
		}
	}
	tx, err := req.ToTransaction()
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := c.signer.SignTx(tx, req.ChainID)
	if err != nil {
		c.builder.ResetNonce()
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := c.node.SendRawTransaction(ctx, raw)
	if err != nil {
		c.builder.ResetNonce()
		return common.Hash{}, err
	}
	c.logger.Info("transaction sent",
		zap.String("hash", hash.Hex()),
		zap.Uint64("nonce", signed.Nonce()),
		zap.Uint8("type", signed.Type()))
	return hash, nil
}

// SendValue transfers wei to to.
func (c *Client) SendValue(ctx context.Context, to common.Address, wei *big.Int, opts txbuilder.BuildOptions) (common.Hash, error) {
	req, err := c.builder.BuildTransfer(ctx, to, wei, opts)
	if err != nil {
		return common.Hash{}, err
	}
	return c.SendTransaction(ctx, req)
}

func (c *Client) SendEther(ctx context.Context, to common.Address, ether decimal.Decimal, opts txbuilder.BuildOptions) (common.Hash, error) {
	wei, err := txbuilder.EtherToWei(ether)
	if err != nil {
		return common.Hash{}, err
	}
	return c.SendValue(ctx, to, wei, opts)
}

// Transact sends a contract call. value may be nil.
func (c *Client) Transact(ctx context.Context, to common.Address, value *big.Int, data []byte, opts txbuilder.BuildOptions) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, ErrNoSigner
	}
	req, err := c.builder.BuildContractCall(ctx, to, value, data, opts)
	if err != nil {
		return common.Hash{}, err
	}
	return c.SendTransaction(ctx, req)
}

// Simulate runs req through eth_call against the latest block.
func (c *Client) Simulate(ctx context.Context, req *txbuilder.Request) error {
	args := req.CallArgs()
	if req.Gas > 0 {
		gas := hexutil.Uint64(req.Gas)
		args.Gas = &gas
	}
	_, err := c.node.Call(ctx, args, node.TagLatest)
	return err
}

// Call runs eth_call from the client's account.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	args := node.CallArgs{To: &to, Data: data}
	if c.signer != nil {
		from := c.signer.Address()
		args.From = &from
	}
	return c.node.Call(ctx, args, node.TagLatest)
}

func (c *Client) GetTransaction(ctx context.Context, hash common.Hash) (*node.Transaction, error) {
	return c.node.TransactionByHash(ctx, hash)
}

func (c *Client) GetReceipt(ctx context.Context, hash common.Hash) (*node.Receipt, error) {
	return c.node.TransactionReceipt(ctx, hash)
}

func (c *Client) WaitForTransaction(ctx context.Context, hash common.Hash) (*node.Transaction, error) {
	return c.node.WaitForTransaction(ctx, hash, c.pollInterval, c.pollTimeout)
}

func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*node.Receipt, error) {
	return c.node.WaitForReceipt(ctx, hash, c.pollInterval, c.pollTimeout)
}

// TransactionFromNotification fetches the transaction an eth_subscribe
// payload refers to, polling while the node does not know it yet.
func (c *Client) TransactionFromNotification(ctx context.Context, kind subscribe.Kind, payload json.RawMessage) (*node.Transaction, error) {
	hash, err := subscribe.HashFromNotification(kind, payload)
	if err != nil {
		return nil, err
	}
	return c.WaitForTransaction(ctx, hash)
}

// Subscriber returns a subscriber that resolves transactions through this
// client's node. Zero poll settings take the client's.
func (c *Client) Subscriber(opts subscribe.Options, extra ...subscribe.Option) *subscribe.Subscriber {
	if opts.PollInterval == 0 {
		opts.PollInterval = c.pollInterval
	}
	if opts.PollTimeout == 0 {
		opts.PollTimeout = c.pollTimeout
	}
	extra = append([]subscribe.Option{subscribe.WithLogger(c.logger)}, extra...)
	return subscribe.New(opts, c.node, extra...)
}

// GasSpent returns the fee paid by a mined transaction, in wei and ether.
func GasSpent(r *node.Receipt) (*big.Int, decimal.Decimal) {
	wei := r.GasCost()
	return wei, txbuilder.WeiToEther(wei)
}

// Balance of addr, or of the client's account for the zero address.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.node.Balance(ctx, c.orSelf(addr), node.TagLatest)
}

func (c *Client) BalanceInEther(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	wei, err := c.Balance(ctx, addr)
	if err != nil {
		return decimal.Zero, err
	}
	return txbuilder.WeiToEther(wei), nil
}

// Nonce is the mined transaction count of addr, or of the client's account.
func (c *Client) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	return c.node.TransactionCount(ctx, c.orSelf(addr), node.TagLatest)
}

func (c *Client) LatestBlock(ctx context.Context) (*node.Block, error) {
	return c.node.BlockByNumber(ctx, node.TagLatest)
}

func (c *Client) PendingBlock(ctx context.Context) (*node.Block, error) {
	return c.node.BlockByNumber(ctx, node.TagPending)
}

func (c *Client) SignMessage(msg []byte) ([]byte, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}
	return c.signer.SignMessage(msg)
}

func (c *Client) IsMessageSignedByMe(msg, sig []byte) bool {
	return c.signer != nil && signer.IsSignedBy(msg, sig, c.signer.Address())
}

// Summary renders a transaction for logs and CLI output.
func Summary(tx *types.Transaction) map[string]any {
	if tx == nil {
		return map[string]any{}
	}
	out := map[string]any{
		"hash":  tx.Hash().Hex(),
		"type":  tx.Type(),
		"nonce": tx.Nonce(),
		"to":    addrToHex(tx.To()),
		"value": tx.Value().String(),
		"gas":   tx.Gas(),
		"data":  hexutil.Encode(tx.Data()),
	}
	if tx.Type() == types.DynamicFeeTxType {
		out["max_fee_wei"] = tx.GasFeeCap().String()
		out["priority_fee_wei"] = tx.GasTipCap().String()
	} else {
		out["gas_price_wei"] = tx.GasPrice().String()
	}
	return out
}

func addrToHex(addr *common.Address) string {
	if addr == nil {
		return ""
	}
	return addr.Hex()
}
