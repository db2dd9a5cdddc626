package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/haukened/rr-dns-proxy/internal/dns/domain"
)

const (
	// headerLen is the fixed size of a DNS message header.
	headerLen = 12

	// MaxMessageSize is the largest plain-UDP DNS datagram (RFC 1035).
	// Receive buffers throughout the proxy are sized to this.
	MaxMessageSize = 512
)

// Flag byte layout, big-endian across bytes 2 and 3:
//
//	byte 2: QR(1) Opcode(4) AA(1) TC(1) RD(1)
//	byte 3: RA(1) Z(3) RCode(4)

// decodeHeader reads the 12-byte header from the front of data.
func decodeHeader(data []byte) (domain.Header, error) {
	if len(data) < headerLen {
		return domain.Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncated, headerLen, len(data))
	}
	b2, b3 := data[2], data[3]
	return domain.Header{
		ID:      binary.BigEndian.Uint16(data[0:2]),
		QR:      b2&0x80 != 0,
		Opcode:  (b2 >> 3) & 0x0F,
		AA:      b2&0x04 != 0,
		TC:      b2&0x02 != 0,
		RD:      b2&0x01 != 0,
		RA:      b3&0x80 != 0,
		Z:       (b3 >> 4) & 0x07,
		RCode:   domain.RCode(b3 & 0x0F),
		QDCount: binary.BigEndian.Uint16(data[4:6]),
		ANCount: binary.BigEndian.Uint16(data[6:8]),
		NSCount: binary.BigEndian.Uint16(data[8:10]),
		ARCount: binary.BigEndian.Uint16(data[10:12]),
	}, nil
}

// encodeHeader serializes h into exactly 12 bytes. The Z bits are written
// back as stored so a parsed header re-encodes byte-for-byte.
func encodeHeader(h domain.Header) []byte {
	out := make([]byte, headerLen)
	binary.BigEndian.PutUint16(out[0:2], h.ID)

	var b2 byte
	if h.QR {
		b2 |= 0x80
	}
	b2 |= (h.Opcode & 0x0F) << 3
	if h.AA {
		b2 |= 0x04
	}
	if h.TC {
		b2 |= 0x02
	}
	if h.RD {
		b2 |= 0x01
	}
	out[2] = b2

	b3 := byte(h.RCode) & 0x0F
	b3 |= (h.Z & 0x07) << 4
	if h.RA {
		b3 |= 0x80
	}
	out[3] = b3

	binary.BigEndian.PutUint16(out[4:6], h.QDCount)
	binary.BigEndian.PutUint16(out[6:8], h.ANCount)
	binary.BigEndian.PutUint16(out[8:10], h.NSCount)
	binary.BigEndian.PutUint16(out[10:12], h.ARCount)
	return out
}
