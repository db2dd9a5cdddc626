// Package wire encodes and decodes complete DNS messages in the RFC 1035
// wire format: the 12-byte bit-packed header, the question section, and the
// answer, authority, and additional record sections, with label compression
// supported on decode. Encoding always emits uncompressed names.
package wire

import (
	"bytes"
	"fmt"

	"github.com/haukened/rr-dns-proxy/internal/dns/domain"
)

// DecodePacket parses one complete DNS message. It decodes the header first,
// then exactly the number of questions and records the header counts
// declare, threading the cursor forward by each field's exact consumed
// length. Bounds are checked before every indexed read, so a hostile
// datagram can fail the parse but never cause an out-of-range access.
//
// If any section cannot be fully parsed the whole parse fails; a partial
// Packet is never returned. No semantic validation happens here: unknown
// types and classes pass through untouched.
func DecodePacket(data []byte) (domain.Packet, error) {
	hdr, err := decodeHeader(data)
	if err != nil {
		return domain.Packet{}, err
	}

	p := domain.Packet{Header: hdr}
	pos := headerLen

	for i := 0; i < int(hdr.QDCount); i++ {
		q, n, err := decodeQuestion(data, pos)
		if err != nil {
			return domain.Packet{}, fmt.Errorf("question %d of %d: %w", i+1, hdr.QDCount, err)
		}
		p.Questions = append(p.Questions, q)
		pos += n
	}

	if p.Answers, pos, err = decodeSection(data, pos, hdr.ANCount, "answer"); err != nil {
		return domain.Packet{}, err
	}
	if p.Authorities, pos, err = decodeSection(data, pos, hdr.NSCount, "authority"); err != nil {
		return domain.Packet{}, err
	}
	if p.Additionals, _, err = decodeSection(data, pos, hdr.ARCount, "additional"); err != nil {
		return domain.Packet{}, err
	}

	return p, nil
}

// decodeSection reads count records starting at pos and returns them with
// the advanced cursor. A count that outruns the buffer fails the section.
func decodeSection(data []byte, pos int, count uint16, section string) ([]domain.ResourceRecord, int, error) {
	if count == 0 {
		return nil, pos, nil
	}
	records := make([]domain.ResourceRecord, 0, count)
	for i := 0; i < int(count); i++ {
		rr, n, err := decodeRecord(data, pos)
		if err != nil {
			return nil, 0, fmt.Errorf("%s record %d of %d: %w", section, i+1, count, err)
		}
		records = append(records, rr)
		pos += n
	}
	return records, pos, nil
}

// EncodePacket serializes p. The header's section counts are taken from the
// actual section lengths, never from stale count fields, so an encoded
// packet always satisfies the count invariant.
func EncodePacket(p domain.Packet) ([]byte, error) {
	hdr := p.Header
	var err error
	if hdr.QDCount, err = sectionCount(len(p.Questions), "question"); err != nil {
		return nil, err
	}
	if hdr.ANCount, err = sectionCount(len(p.Answers), "answer"); err != nil {
		return nil, err
	}
	if hdr.NSCount, err = sectionCount(len(p.Authorities), "authority"); err != nil {
		return nil, err
	}
	if hdr.ARCount, err = sectionCount(len(p.Additionals), "additional"); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(encodeHeader(hdr))

	for _, q := range p.Questions {
		if err := encodeQuestion(&buf, q); err != nil {
			return nil, err
		}
	}
	for _, section := range [][]domain.ResourceRecord{p.Answers, p.Authorities, p.Additionals} {
		for _, rr := range section {
			if err := encodeRecord(&buf, rr); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// sectionCount converts a section length to its 16-bit header count.
func sectionCount(n int, section string) (uint16, error) {
	if n > 0xFFFF {
		return 0, fmt.Errorf("too many %s entries: %d (max 65535)", section, n)
	}
	return uint16(n), nil
}
