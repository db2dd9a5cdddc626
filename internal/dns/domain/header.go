package domain

// Header is the fixed 12-byte header that opens every DNS message.
// The four count fields describe how many entries each section carries;
// after a successful parse they always agree with the actual section
// lengths, and a disagreement is a parse error.
type Header struct {
	// ID is the 16-bit correlation token chosen by the client. The proxy
	// treats it as opaque apart from matching replies to queries.
	ID uint16

	// QR is false for queries and true for responses.
	QR bool

	// Opcode is the 4-bit kind of query (0 = standard).
	Opcode uint8

	AA bool // authoritative answer
	TC bool // truncated
	RD bool // recursion desired
	RA bool // recursion available

	// Z holds the 3 reserved bits. They round-trip verbatim rather than
	// being forced to zero, so re-encoding a parsed header is byte-exact.
	Z uint8

	// RCode is the 4-bit response code.
	RCode RCode

	QDCount uint16 // question entries
	ANCount uint16 // answer records
	NSCount uint16 // authority records
	ARCount uint16 // additional records
}

// IsResponse reports whether the QR bit marks this message as a response.
func (h Header) IsResponse() bool {
	return h.QR
}

// RecordCount returns the total number of resource records the header
// declares across the answer, authority, and additional sections.
func (h Header) RecordCount() int {
	return int(h.ANCount) + int(h.NSCount) + int(h.ARCount)
}
