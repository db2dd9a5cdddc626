// Package upstream owns the exchange with the configured resolver: one
// connected UDP socket shared by every in-flight query, written to by the
// proxy service and drained by a dispatcher loop.
//
// The socket is connected, not merely bound, so the kernel discards
// datagrams that do not originate from the upstream address. Replies that
// reach the dispatcher therefore already passed a source check, and id
// correlation is the remaining match criterion.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/haukened/rr-dns-proxy/internal/dns/common/log"
	"github.com/haukened/rr-dns-proxy/internal/dns/gateways/wire"
)

// DialFunc creates the upstream connection. Injected in tests.
type DialFunc func(network, address string) (net.Conn, error)

// Client is the shared upstream exchange.
type Client struct {
	addr   string
	conn   net.Conn
	logger log.Logger

	closeOnce sync.Once
	closeErr  error
}

// Options configures a Client. Address is required.
type Options struct {
	Address string
	Dial    DialFunc
	Logger  log.Logger
}

// NewClient connects a UDP socket to the upstream resolver. The connection
// is datagram-oriented, so "connecting" sends nothing; it only fixes the
// peer address for sends and source filtering.
func NewClient(opts Options) (*Client, error) {
	if opts.Address == "" {
		return nil, errors.New("upstream address is required")
	}
	if opts.Dial == nil {
		opts.Dial = net.Dial
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}

	conn, err := opts.Dial("udp", opts.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect upstream %s: %w", opts.Address, err)
	}

	return &Client{
		addr:   opts.Address,
		conn:   conn,
		logger: opts.Logger,
	}, nil
}

// Send writes one raw query datagram to the upstream resolver.
func (c *Client) Send(raw []byte) error {
	if _, err := c.conn.Write(raw); err != nil {
		return fmt.Errorf("upstream write failed: %w", err)
	}
	return nil
}

// Run receives upstream datagrams and hands each to deliver until the
// context is cancelled or the socket is closed. Transient read errors are
// logged and the loop keeps receiving; the caller decides what a delivered
// datagram means.
func (c *Client) Run(ctx context.Context, deliver func(raw []byte)) {
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	buffer := make([]byte, wire.MaxMessageSize)
	for {
		n, err := c.conn.Read(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				c.logger.Debug(nil, "Upstream receive loop stopped")
				return
			}
			c.logger.Warn(map[string]any{
				"upstream": c.addr,
				"error":    err.Error(),
			}, "Upstream read failed")
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buffer[:n])
		deliver(datagram)
	}
}

// Close shuts the upstream socket. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Address returns the configured upstream address.
func (c *Client) Address() string {
	return c.addr
}
