package proxy

import (
	"errors"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/haukened/rr-dns-proxy/internal/dns/common/clock"
	"github.com/haukened/rr-dns-proxy/internal/dns/domain"
)

// ErrTableFull is returned when the in-flight table is at capacity. The new
// query is refused; registered cycles are never evicted to make room.
var ErrTableFull = errors.New("correlation table full")

// Pending is the correlation context for one in-flight query: the id the
// client used, the id the proxy sent upstream, where the reply must go,
// and how long the cycle may wait. It lives from Forwarding until a match,
// a timeout, or a release, and is then discarded.
type Pending struct {
	ProxyID    uint16
	ClientID   uint16
	ClientAddr net.Addr
	Deadline   time.Time

	// Reply receives the matched upstream packet. Buffered so the
	// dispatcher never blocks on a cycle that already gave up.
	Reply chan domain.Packet
}

// Correlator matches upstream replies to waiting query cycles. Client ids
// are rewritten to locally unique tokens on registration, so two clients
// reusing the same id never collide in flight.
//
// The table is an expirable LRU used for its TTL, which reaps entries whose
// cycle goroutine died without releasing. Capacity is enforced up front in
// Register: at the bound new queries are refused with ErrTableFull, never
// admitted by evicting a live cycle, because an evicted cycle would stall to
// timeout and its proxy id could be reallocated to another client while the
// first still waits on it. Normal cycles remove their entry on match or
// release well before either bound.
type Correlator struct {
	mu       sync.Mutex
	table    *expirable.LRU[uint16, *Pending]
	capacity int
	clk      clock.Clock
	next     uint16
}

// NewCorrelator returns a correlator bounded to capacity in-flight entries,
// each reaped after ttl if never matched or released. A nil clk defaults to
// the real clock.
func NewCorrelator(capacity int, ttl time.Duration, clk clock.Clock) *Correlator {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Correlator{
		table:    expirable.NewLRU[uint16, *Pending](capacity, nil, ttl),
		capacity: capacity,
		clk:      clk,
		next:     uint16(rand.Uint32()),
	}
}

// Register allocates a free proxy id, records the correlation context, and
// returns it. At capacity the query is refused rather than displacing an
// in-flight cycle. The caller must Release the id when its cycle ends.
func (c *Correlator) Register(clientID uint16, clientAddr net.Addr, deadline time.Time) (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table.Len() >= c.capacity {
		return nil, ErrTableFull
	}
	for i := 0; i <= 0xFFFF; i++ {
		id := c.next
		c.next++
		if c.table.Contains(id) {
			continue
		}
		p := &Pending{
			ProxyID:    id,
			ClientID:   clientID,
			ClientAddr: clientAddr,
			Deadline:   deadline,
			Reply:      make(chan domain.Packet, 1),
		}
		c.table.Add(id, p)
		return p, nil
	}
	return nil, ErrTableFull
}

// Deliver routes a parsed upstream response to the cycle waiting on its id.
// It reports false for an unknown id (a stale or stray reply) or for an
// entry whose deadline already passed, both of which the caller discards.
// A matched entry is removed so each reply is delivered at most once.
func (c *Correlator) Deliver(resp domain.Packet) bool {
	c.mu.Lock()
	pend, ok := c.table.Get(resp.Header.ID)
	if ok {
		c.table.Remove(resp.Header.ID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if c.clk.Now().After(pend.Deadline) {
		return false
	}
	// Non-blocking: the cycle may have timed out between lookup and send.
	select {
	case pend.Reply <- resp:
	default:
	}
	return true
}

// Release removes an entry after its cycle ends, whatever the outcome.
// Releasing an id that was already delivered is a no-op.
func (c *Correlator) Release(id uint16) {
	c.mu.Lock()
	c.table.Remove(id)
	c.mu.Unlock()
}

// Len returns the number of in-flight correlation entries.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Len()
}
