package wire

import "errors"

// Decode failure categories. Every decode site wraps one of these with the
// offending offset and the needed-versus-available byte counts, so a
// malformed datagram can be diagnosed from the log line alone.
var (
	// ErrTruncated means the buffer ran out of bytes for the field being
	// read: a label body, a record's fixed fields, or declared RDATA.
	ErrTruncated = errors.New("truncated dns message")

	// ErrCompressionLoop means name decompression revisited an offset it
	// had already followed, or chained through more pointer hops than the
	// decoder allows. Either way the expansion would never terminate.
	ErrCompressionLoop = errors.New("name compression loop")

	// ErrOutOfBounds means the cursor would land outside the buffer before
	// any byte of the field could be read.
	ErrOutOfBounds = errors.New("offset out of bounds")
)
