package node

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-retryablehttp"
)

// Transport is the kind of connection a node uri selects.
type Transport string

const (
	TransportHTTP      Transport = "http"
	TransportWebsocket Transport = "ws"
	TransportIPC       Transport = "ipc"
)

// TransportFor classifies uri by scheme: http(s), ws(s), or a path ending in
// ".ipc".
func TransportFor(uri string) (Transport, error) {
	uri = strings.TrimSpace(uri)
	if strings.HasSuffix(uri, ".ipc") {
		return TransportIPC, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return TransportHTTP, nil
	case "ws", "wss":
		return TransportWebsocket, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri)
	}
}

type dialConfig struct {
	timeout      time.Duration
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	userAgent    string
}

// DialOption configures Dial.
type DialOption func(*dialConfig)

// WithRequestTimeout bounds a single HTTP request. Default: 15 seconds.
func WithRequestTimeout(d time.Duration) DialOption {
	return func(c *dialConfig) {
		c.timeout = d
	}
}

// WithRetryMax sets how many times a failed HTTP request is retried.
// Default: 2.
func WithRetryMax(n int) DialOption {
	return func(c *dialConfig) {
		c.retryMax = n
	}
}

// WithRetryWait sets the bounds of the HTTP retry backoff.
func WithRetryWait(min, max time.Duration) DialOption {
	return func(c *dialConfig) {
		c.retryWaitMin = min
		c.retryWaitMax = max
	}
}

// WithUserAgent sets the User-Agent header of HTTP requests.
func WithUserAgent(ua string) DialOption {
	return func(c *dialConfig) {
		c.userAgent = ua
	}
}

// Dial connects to a node. The scheme of uri selects the transport; HTTP
// requests go through a retrying client.
func Dial(ctx context.Context, uri string, opts ...DialOption) (*rpc.Client, error) {
	cfg := dialConfig{
		timeout:      15 * time.Second,
		retryMax:     2,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
		userAgent:    "web3client",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	transport, err := TransportFor(uri)
	if err != nil {
		return nil, err
	}

	var client *rpc.Client
	switch transport {
	case TransportIPC:
		client, err = rpc.DialIPC(ctx, uri)
	case TransportWebsocket:
		client, err = rpc.DialOptions(ctx, uri)
	default:
		client, err = rpc.DialOptions(ctx, uri, rpc.WithHTTPClient(newHTTPClient(cfg).StandardClient()))
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", transport, err)
	}
	if transport == TransportHTTP && cfg.userAgent != "" {
		client.SetHeader("User-Agent", cfg.userAgent)
	}
	return client, nil
}

func newHTTPClient(cfg dialConfig) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.HTTPClient.Timeout = cfg.timeout
	client.RetryMax = cfg.retryMax
	client.RetryWaitMin = cfg.retryWaitMin
	client.RetryWaitMax = cfg.retryWaitMax
	return client
}
