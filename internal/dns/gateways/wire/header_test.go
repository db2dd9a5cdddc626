package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-dns-proxy/internal/dns/domain"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		hdr  domain.Header
	}{
		{
			name: "plain query",
			hdr: domain.Header{
				ID:      0x1234,
				RD:      true,
				QDCount: 1,
			},
		},
		{
			name: "response with all flags",
			hdr: domain.Header{
				ID:      0xFFFF,
				QR:      true,
				Opcode:  15,
				AA:      true,
				TC:      true,
				RD:      true,
				RA:      true,
				Z:       5,
				RCode:   domain.RCode(3),
				QDCount: 1,
				ANCount: 2,
				NSCount: 3,
				ARCount: 4,
			},
		},
		{
			name: "zero value",
			hdr:  domain.Header{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodeHeader(tt.hdr)
			require.Len(t, data, 12)

			got, err := decodeHeader(data)
			require.NoError(t, err)
			assert.Equal(t, tt.hdr, got)
		})
	}
}

func TestEncodeHeader_BitLayout(t *testing.T) {
	data := encodeHeader(domain.Header{ID: 0x1234, RD: true, QDCount: 1})

	// Standard query with recursion desired: flags 0x01 0x00.
	assert.Equal(t, []byte{0x12, 0x34, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, data)
}

func TestDecodeHeader_BitLayout(t *testing.T) {
	// 0x85 = QR + opcode 0 + AA + RD, 0x80 = RA, rcode 0.
	data := []byte{0xAB, 0xCD, 0x85, 0x80, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}

	hdr, err := decodeHeader(data)

	require.NoError(t, err)
	assert.Equal(t, uint16(0xABCD), hdr.ID)
	assert.True(t, hdr.QR)
	assert.Equal(t, uint8(0), hdr.Opcode)
	assert.True(t, hdr.AA)
	assert.False(t, hdr.TC)
	assert.True(t, hdr.RD)
	assert.True(t, hdr.RA)
	assert.Equal(t, uint8(0), hdr.Z)
	assert.Equal(t, domain.RCode(0), hdr.RCode)
	assert.Equal(t, uint16(1), hdr.QDCount)
	assert.Equal(t, uint16(1), hdr.ANCount)
}

func TestDecodeHeader_ReservedBitsSurvive(t *testing.T) {
	data := encodeHeader(domain.Header{Z: 7})

	hdr, err := decodeHeader(data)

	require.NoError(t, err)
	assert.Equal(t, uint8(7), hdr.Z)
}

func TestDecodeHeader_Truncated(t *testing.T) {
	_, err := decodeHeader(make([]byte, 11))

	assert.ErrorIs(t, err, ErrTruncated)
}
