// Package transport provides the client-facing UDP listener. It hands each
// received datagram, bytes and source address, to the proxy service and
// writes back whatever reply the service returns. Wire-format concerns stay
// in the service layer because the proxy must forward original query bytes.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/haukened/rr-dns-proxy/internal/dns/common/log"
	"github.com/haukened/rr-dns-proxy/internal/dns/gateways/wire"
	"github.com/haukened/rr-dns-proxy/internal/dns/services/proxy"
)

// UDPTransport implements proxy.ServerTransport for plain DNS over UDP.
// It owns socket lifecycle, the receive loop, and reply transmission.
type UDPTransport struct {
	addr   string
	conn   *net.UDPConn
	logger log.Logger

	// Synchronization for graceful shutdown
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
}

// NewUDPTransport creates a new UDP transport bound to addr when started.
func NewUDPTransport(addr string, logger log.Logger) *UDPTransport {
	return &UDPTransport{
		addr:   addr,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start binds the UDP socket and begins the receive loop.
func (t *UDPTransport) Start(ctx context.Context, handler proxy.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running = true

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   conn.LocalAddr().String(),
	}, "Listener started")

	go t.listenLoop(ctx, handler)

	return nil
}

// Stop gracefully shuts down the UDP transport.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopCh)

	var closeErr error
	if t.conn != nil {
		closeErr = t.conn.Close()
		if closeErr != nil {
			t.logger.Warn(map[string]any{
				"error": closeErr.Error(),
			}, "Error closing UDP connection")
		}
	}

	t.running = false

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "Listener stopped")

	return closeErr
}

// Address returns the bound socket address once started, otherwise the
// configured one. Tests bind port 0 and read the real port from here.
func (t *UDPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.addr
}

// listenLoop receives datagrams until stopped. Each datagram is copied out
// of the receive buffer before being handled, so concurrent cycles never
// see each other's bytes and no stale bytes leak between reads.
func (t *UDPTransport) listenLoop(ctx context.Context, handler proxy.Handler) {
	buffer := make([]byte, wire.MaxMessageSize)

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug(nil, "UDP transport stopping due to context cancellation")
			return
		case <-t.stopCh:
			t.logger.Debug(nil, "UDP transport stopping due to stop signal")
			return
		default:
			n, clientAddr, err := t.conn.ReadFromUDP(buffer)
			if err != nil {
				t.mu.RLock()
				running := t.running
				t.mu.RUnlock()

				if !running {
					return // Normal shutdown
				}

				t.logger.Warn(map[string]any{
					"error": err.Error(),
				}, "Failed to read UDP packet")
				continue
			}

			packet := make([]byte, n)
			copy(packet, buffer[:n])
			go t.handlePacket(ctx, packet, clientAddr, handler)
		}
	}
}

// handlePacket runs one datagram through the handler and sends any reply.
func (t *UDPTransport) handlePacket(ctx context.Context, data []byte, clientAddr *net.UDPAddr, handler proxy.Handler) {
	t.logger.Debug(map[string]any{
		"client": clientAddr.String(),
		"size":   len(data),
	}, "Received datagram")

	reply := handler.HandlePacket(ctx, data, clientAddr)
	if reply == nil {
		return
	}

	if _, err := t.conn.WriteToUDP(reply, clientAddr); err != nil {
		t.logger.Error(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
		}, "Failed to send reply")
		return
	}

	t.logger.Debug(map[string]any{
		"client": clientAddr.String(),
		"size":   len(reply),
	}, "Sent reply")
}

var _ proxy.ServerTransport = (*UDPTransport)(nil)
