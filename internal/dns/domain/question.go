package domain

// Question is one entry of a DNS message's question section.
type Question struct {
	// Name is the fully expanded, dot-joined domain name. Compression
	// pointers are resolved during decoding, so this never contains
	// wire-format artifacts.
	Name  string
	Type  RRType
	Class RRClass
}
