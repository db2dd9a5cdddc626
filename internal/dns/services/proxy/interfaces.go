package proxy

import (
	"context"
	"net"

	"github.com/haukened/rr-dns-proxy/internal/dns/domain"
)

// PacketCodec translates between raw datagrams and domain packets.
type PacketCodec interface {
	Decode(data []byte) (domain.Packet, error)
	Encode(p domain.Packet) ([]byte, error)
}

// Upstream sends raw query bytes to the configured resolver. Replies come
// back asynchronously through the dispatcher feeding Proxy.HandleReply.
type Upstream interface {
	Send(raw []byte) error
}

// Handler processes one client datagram and returns the raw reply bytes,
// or nil when no reply should be sent (malformed query, upstream timeout,
// or any mid-cycle failure).
type Handler interface {
	HandlePacket(ctx context.Context, raw []byte, clientAddr net.Addr) []byte
}

// ServerTransport is the client-facing listener. Implementations own the
// socket lifecycle and feed every received datagram to a Handler.
type ServerTransport interface {
	// Start begins listening and dispatching datagrams to handler.
	Start(ctx context.Context, handler Handler) error

	// Stop gracefully shuts down the transport.
	Stop() error

	// Address returns the network address the transport is bound to.
	Address() string
}
