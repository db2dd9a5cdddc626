package domain

import "net"

// ResourceRecord represents one DNS resource record from the answer,
// authority, or additional section. The proxy forwards records untouched,
// so Data stays in wire form; only A-record payloads are ever interpreted.
type ResourceRecord struct {
	Name  string
	Type  RRType
	Class RRClass

	// TTL is the record lifetime in seconds, passed through unchanged.
	TTL uint32

	// Data is the raw RDATA. Its length is what gets written as RDLENGTH
	// on encode.
	Data []byte
}

// IPv4 returns the record's address when it carries a well-formed A-record
// payload. The second return value is false for every other record shape.
func (rr ResourceRecord) IPv4() (net.IP, bool) {
	if rr.Type != RRTypeA || len(rr.Data) != net.IPv4len {
		return nil, false
	}
	return net.IPv4(rr.Data[0], rr.Data[1], rr.Data[2], rr.Data[3]).To4(), true
}
