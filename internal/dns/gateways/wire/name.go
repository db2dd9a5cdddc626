package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	// maxLabelLen is the RFC 1035 limit for a single label.
	maxLabelLen = 63

	// maxPointerHops bounds how many compression pointers one name may
	// chain through. Legitimate messages use one or two.
	maxPointerHops = 16

	// pointerMask marks the top two bits that turn a length byte into a
	// 14-bit compression pointer.
	pointerMask = 0xC0
)

// decodeName expands the domain name starting at offset and returns it
// dot-joined, together with the number of bytes the name occupies at that
// offset. Once a compression pointer is followed, the consumed length is
// frozen at the bytes read so far plus the 2-byte pointer, regardless of
// how long the pointed-to name is: decompression recurses logically, never
// on the cursor.
//
// A visited-offset set plus a hop bound guarantees termination; a
// self-referencing or cyclic pointer chain fails with ErrCompressionLoop
// instead of hanging.
func decodeName(data []byte, offset int) (string, int, error) {
	if offset < 0 || offset >= len(data) {
		return "", 0, fmt.Errorf("%w: name offset %d in %d-byte buffer", ErrOutOfBounds, offset, len(data))
	}

	var labels []string
	visited := make(map[int]struct{})
	pos := offset
	consumed := 0
	jumped := false
	hops := 0

	for {
		if pos >= len(data) {
			return "", 0, fmt.Errorf("%w: name runs past end of %d-byte buffer at offset %d", ErrTruncated, len(data), pos)
		}
		length := int(data[pos])
		switch {
		case length == 0:
			if !jumped {
				consumed = pos + 1 - offset
			}
			return strings.Join(labels, "."), consumed, nil

		case length&pointerMask == pointerMask:
			if pos+1 >= len(data) {
				return "", 0, fmt.Errorf("%w: compression pointer at offset %d missing its low byte", ErrTruncated, pos)
			}
			if _, seen := visited[pos]; seen {
				return "", 0, fmt.Errorf("%w: pointer at offset %d revisited", ErrCompressionLoop, pos)
			}
			visited[pos] = struct{}{}
			hops++
			if hops > maxPointerHops {
				return "", 0, fmt.Errorf("%w: more than %d pointer hops", ErrCompressionLoop, maxPointerHops)
			}
			if !jumped {
				consumed = pos + 2 - offset
				jumped = true
			}
			pos = int(binary.BigEndian.Uint16(data[pos:pos+2]) & 0x3FFF)

		default:
			start := pos + 1
			if start+length > len(data) {
				return "", 0, fmt.Errorf("%w: label at offset %d declares %d bytes, %d remain", ErrTruncated, pos, length, len(data)-start)
			}
			labels = append(labels, string(data[start:start+length]))
			pos = start + length
		}
	}
}

// encodeName writes a domain name in wire form: length-prefixed labels
// terminated by a zero byte. Encoding never emits compression pointers;
// the uncompressed form costs a few bytes but is always correct and keeps
// serialization independent of buffer layout.
func encodeName(buf *bytes.Buffer, name string) error {
	name = strings.TrimSuffix(name, ".")
	if name != "" {
		for _, label := range strings.Split(name, ".") {
			if len(label) > maxLabelLen {
				return fmt.Errorf("label too long: %q", label)
			}
			if label == "" {
				continue
			}
			buf.WriteByte(byte(len(label)))
			buf.WriteString(label)
		}
	}
	buf.WriteByte(0)
	return nil
}
