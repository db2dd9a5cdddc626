package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/haukened/rr-dns-proxy/internal/dns/domain"
)

// decodeQuestion reads one question entry at offset and returns it with the
// number of bytes it occupies there (compressed-aware for the name).
func decodeQuestion(data []byte, offset int) (domain.Question, int, error) {
	name, n, err := decodeName(data, offset)
	if err != nil {
		return domain.Question{}, 0, err
	}
	pos := offset + n
	if pos+4 > len(data) {
		return domain.Question{}, 0, fmt.Errorf("%w: question fields at offset %d need 4 bytes, %d remain", ErrTruncated, pos, len(data)-pos)
	}
	q := domain.Question{
		Name:  name,
		Type:  domain.RRType(binary.BigEndian.Uint16(data[pos : pos+2])),
		Class: domain.RRClass(binary.BigEndian.Uint16(data[pos+2 : pos+4])),
	}
	return q, pos + 4 - offset, nil
}

// encodeQuestion appends one question entry to buf.
func encodeQuestion(buf *bytes.Buffer, q domain.Question) error {
	if err := encodeName(buf, q.Name); err != nil {
		return err
	}
	_ = binary.Write(buf, binary.BigEndian, uint16(q.Type))
	_ = binary.Write(buf, binary.BigEndian, uint16(q.Class))
	return nil
}
