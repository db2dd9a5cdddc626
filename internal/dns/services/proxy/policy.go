package proxy

import (
	"fmt"
	"net"

	"github.com/haukened/rr-dns-proxy/internal/dns/common/utils"
	"github.com/haukened/rr-dns-proxy/internal/dns/domain"
)

// Policy transforms a matched upstream response before it is serialized and
// returned to the client. It runs exactly once per completed cycle. The
// proxy owns the packet at this point, so policies may mutate it in place
// or return a different value.
type Policy func(domain.Packet) domain.Packet

// Noop returns every response unchanged.
func Noop() Policy {
	return func(p domain.Packet) domain.Packet {
		return p
	}
}

// RewriteAnswers returns a policy that overwrites the payload of every
// A-record answer with addr whenever the response's first question names
// target. Names are compared in canonical form. Non-address records and
// responses for other names pass through untouched.
func RewriteAnswers(target string, addr net.IP) (Policy, error) {
	v4 := addr.To4()
	if v4 == nil {
		return nil, fmt.Errorf("rewrite address must be IPv4, got %v", addr)
	}
	canonical := utils.CanonicalDNSName(target)

	return func(p domain.Packet) domain.Packet {
		if utils.CanonicalDNSName(p.FirstQuestionName()) != canonical {
			return p
		}
		for i := range p.Answers {
			if p.Answers[i].Type.IsAddress() {
				p.Answers[i].Data = append([]byte(nil), v4...)
			}
		}
		return p
	}, nil
}
