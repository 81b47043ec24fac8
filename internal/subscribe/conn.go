package subscribe

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"web3client/internal/node"
)

// Conn is one full-duplex JSON connection to a node.
type Conn interface {
	Send(v any) error
	// Receive returns the next frame. It honours the read deadline.
	Receive() ([]byte, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, uri string) (Conn, error)
}

type DialerFunc func(ctx context.Context, uri string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, uri string) (Conn, error) {
	return f(ctx, uri)
}

// NetDialer opens websocket uris with gorilla/websocket and ".ipc" paths as
// unix sockets.
type NetDialer struct {
	HandshakeTimeout time.Duration
}

func (d NetDialer) Dial(ctx context.Context, uri string) (Conn, error) {
	transport, err := node.TransportFor(uri)
	if err != nil {
		return nil, err
	}
	if transport == node.TransportIPC {
		var nd net.Dialer
		c, err := nd.DialContext(ctx, "unix", strings.TrimSpace(uri))
		if err != nil {
			return nil, err
		}
		return &ipcConn{conn: c, enc: json.NewEncoder(c), dec: json.NewDecoder(c)}, nil
	}
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 45 * time.Second
	}
	c, _, err := dialer.DialContext(ctx, uri, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(v any) error {
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Receive() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

type ipcConn struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func (c *ipcConn) Send(v any) error {
	return c.enc.Encode(v)
}

func (c *ipcConn) Receive() ([]byte, error) {
	var raw json.RawMessage
	if err := c.dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *ipcConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *ipcConn) Close() error {
	return c.conn.Close()
}
