package wire

import (
	"fmt"

	"github.com/haukened/rr-dns-proxy/internal/dns/common/log"
	"github.com/haukened/rr-dns-proxy/internal/dns/domain"
)

// udpCodec is the packet codec handed to the proxy service. It wraps the
// package-level codec functions with debug logging of raw datagrams.
type udpCodec struct {
	logger log.Logger
}

// NewUDPCodec returns a codec for plain DNS over UDP messages. The logger
// is used for wire-level debug output only.
func NewUDPCodec(logger log.Logger) *udpCodec {
	return &udpCodec{
		logger: logger,
	}
}

// Decode parses a raw datagram into a Packet.
func (c *udpCodec) Decode(data []byte) (domain.Packet, error) {
	p, err := DecodePacket(data)
	if err != nil {
		return domain.Packet{}, err
	}
	c.logger.Debug(map[string]any{
		"id":        p.Header.ID,
		"qr":        p.Header.QR,
		"questions": len(p.Questions),
		"answers":   len(p.Answers),
		"size":      len(data),
	}, "Decoded DNS packet")
	return p, nil
}

// Encode serializes a Packet back to wire bytes.
func (c *udpCodec) Encode(p domain.Packet) ([]byte, error) {
	data, err := EncodePacket(p)
	if err != nil {
		return nil, err
	}
	c.logger.Debug(map[string]any{
		"id":   p.Header.ID,
		"size": len(data),
		"raw":  fmt.Sprintf("%x", data),
	}, "Encoded DNS packet")
	return data, nil
}
