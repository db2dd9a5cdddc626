// Package proxy implements the forwarding service: each client datagram
// runs one query cycle (parse, forward upstream, await the correlated
// reply, transform, respond) and every outcome, success or not, ends the
// cycle without affecting any other.
package proxy

import (
	"context"
	"encoding/binary"
	"net"
	"time"

	"github.com/haukened/rr-dns-proxy/internal/dns/common/clock"
	"github.com/haukened/rr-dns-proxy/internal/dns/common/log"
)

// defaultTimeout bounds a query cycle when no timeout is configured.
const defaultTimeout = 5 * time.Second

// Proxy is the forwarding service. One instance serves all clients;
// per-query state lives in the correlator, never on the Proxy itself.
type Proxy struct {
	codec      PacketCodec
	upstream   Upstream
	correlator *Correlator
	policy     Policy
	timeout    time.Duration
	clock      clock.Clock
	logger     log.Logger
}

// Options configures a Proxy. Codec, Upstream, and Correlator are
// required; the rest default sensibly.
type Options struct {
	Codec      PacketCodec
	Upstream   Upstream
	Correlator *Correlator
	Policy     Policy
	Timeout    time.Duration
	Clock      clock.Clock
	Logger     log.Logger
}

// New constructs a Proxy from opts.
func New(opts Options) *Proxy {
	if opts.Policy == nil {
		opts.Policy = Noop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Proxy{
		codec:      opts.Codec,
		upstream:   opts.Upstream,
		correlator: opts.Correlator,
		policy:     opts.Policy,
		timeout:    opts.Timeout,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
}

// HandlePacket runs one full query cycle for a client datagram and returns
// the raw reply, or nil when the client should receive nothing. It is safe
// to call concurrently; each call is an isolated cycle.
func (p *Proxy) HandlePacket(ctx context.Context, raw []byte, clientAddr net.Addr) []byte {
	query, err := p.codec.Decode(raw)
	if err != nil {
		p.logger.Warn(map[string]any{
			"client": clientAddr.String(),
			"size":   len(raw),
			"error":  err.Error(),
		}, "Discarding malformed query")
		return nil
	}

	deadline := p.clock.Now().Add(p.timeout)
	pend, err := p.correlator.Register(query.Header.ID, clientAddr, deadline)
	if err != nil {
		p.logger.Error(map[string]any{
			"client":   clientAddr.String(),
			"query_id": query.Header.ID,
			"error":    err.Error(),
		}, "Cannot track query")
		return nil
	}
	defer p.correlator.Release(pend.ProxyID)

	// Forward the client's bytes unmodified except for the id, which is
	// swapped for the locally unique token and restored on reply.
	forward := make([]byte, len(raw))
	copy(forward, raw)
	binary.BigEndian.PutUint16(forward[:2], pend.ProxyID)

	if err := p.upstream.Send(forward); err != nil {
		p.logger.Error(map[string]any{
			"client":   clientAddr.String(),
			"query_id": query.Header.ID,
			"error":    err.Error(),
		}, "Upstream send failed")
		return nil
	}

	p.logger.Debug(map[string]any{
		"client":   clientAddr.String(),
		"query_id": query.Header.ID,
		"proxy_id": pend.ProxyID,
		"name":     query.FirstQuestionName(),
	}, "Forwarded query upstream")

	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	select {
	case resp := <-pend.Reply:
		resp.Header.ID = pend.ClientID
		resp = p.policy(resp)

		out, err := p.codec.Encode(resp)
		if err != nil {
			p.logger.Error(map[string]any{
				"client":   clientAddr.String(),
				"query_id": query.Header.ID,
				"error":    err.Error(),
			}, "Failed to encode response")
			return nil
		}
		p.logger.Debug(map[string]any{
			"client":   clientAddr.String(),
			"query_id": query.Header.ID,
			"answers":  len(resp.Answers),
			"rcode":    resp.Header.RCode.String(),
		}, "Replying to client")
		return out

	case <-waitCtx.Done():
		p.logger.Warn(map[string]any{
			"client":   clientAddr.String(),
			"query_id": query.Header.ID,
			"timeout":  p.timeout.String(),
		}, "Upstream timed out, no reply sent")
		return nil
	}
}

// HandleReply routes one upstream datagram to the cycle waiting on it.
// Malformed datagrams and unmatched ids are discarded; the waiting cycles
// keep waiting until their own deadlines.
func (p *Proxy) HandleReply(raw []byte) {
	resp, err := p.codec.Decode(raw)
	if err != nil {
		p.logger.Warn(map[string]any{
			"size":  len(raw),
			"error": err.Error(),
		}, "Discarding malformed upstream datagram")
		return
	}
	if !p.correlator.Deliver(resp) {
		p.logger.Debug(map[string]any{
			"response_id": resp.Header.ID,
		}, "Discarding unmatched upstream response")
	}
}

var _ Handler = (*Proxy)(nil)
