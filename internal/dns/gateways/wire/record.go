package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/haukened/rr-dns-proxy/internal/dns/domain"
)

// recordFixedLen is TYPE + CLASS + TTL + RDLENGTH after the name.
const recordFixedLen = 10

// decodeRecord reads one resource record at offset and returns it with the
// number of bytes it occupies there. RDATA is copied out of the buffer so
// the record owns its payload.
func decodeRecord(data []byte, offset int) (domain.ResourceRecord, int, error) {
	name, n, err := decodeName(data, offset)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}
	pos := offset + n
	if pos+recordFixedLen > len(data) {
		return domain.ResourceRecord{}, 0, fmt.Errorf("%w: record fields at offset %d need %d bytes, %d remain", ErrTruncated, pos, recordFixedLen, len(data)-pos)
	}

	rr := domain.ResourceRecord{
		Name:  name,
		Type:  domain.RRType(binary.BigEndian.Uint16(data[pos : pos+2])),
		Class: domain.RRClass(binary.BigEndian.Uint16(data[pos+2 : pos+4])),
		TTL:   binary.BigEndian.Uint32(data[pos+4 : pos+8]),
	}
	rdLen := int(binary.BigEndian.Uint16(data[pos+8 : pos+10]))
	pos += recordFixedLen

	if pos+rdLen > len(data) {
		return domain.ResourceRecord{}, 0, fmt.Errorf("%w: rdata at offset %d declares %d bytes, %d remain", ErrTruncated, pos, rdLen, len(data)-pos)
	}
	rr.Data = make([]byte, rdLen)
	copy(rr.Data, data[pos:pos+rdLen])

	return rr, pos + rdLen - offset, nil
}

// encodeRecord appends one resource record to buf. RDLENGTH is derived from
// the actual payload length.
func encodeRecord(buf *bytes.Buffer, rr domain.ResourceRecord) error {
	if err := encodeName(buf, rr.Name); err != nil {
		return err
	}
	if len(rr.Data) > 0xFFFF {
		return fmt.Errorf("rdata too large: %d bytes (max 65535)", len(rr.Data))
	}
	_ = binary.Write(buf, binary.BigEndian, uint16(rr.Type))
	_ = binary.Write(buf, binary.BigEndian, uint16(rr.Class))
	_ = binary.Write(buf, binary.BigEndian, rr.TTL)
	_ = binary.Write(buf, binary.BigEndian, uint16(len(rr.Data)))
	buf.Write(rr.Data)
	return nil
}
