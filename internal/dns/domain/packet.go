package domain

// Packet is the in-memory form of one complete DNS message: the header plus
// the four ordered sections. A Packet is a self-contained value. It owns all
// of its sub-structures and holds no references into the buffer it was
// parsed from, so it can outlive (and be mutated independently of) the
// datagram that produced it.
//
// Lifecycle: constructed fresh per received datagram by the wire parser,
// inspected and possibly mutated by the proxy service, serialized back to
// bytes, then dropped. Nothing persists across requests.
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []ResourceRecord
	Authorities []ResourceRecord
	Additionals []ResourceRecord
}

// FirstQuestionName returns the expanded name of the first question, or the
// empty string for a packet with an empty question section. Forwarded
// messages carry exactly one question, so this is the name the response
// transform policy matches against.
func (p Packet) FirstQuestionName() string {
	if len(p.Questions) == 0 {
		return ""
	}
	return p.Questions[0].Name
}
