package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-dns-proxy/internal/dns/common/log"
	"github.com/haukened/rr-dns-proxy/internal/dns/config"
	"github.com/haukened/rr-dns-proxy/internal/dns/domain"
	"github.com/haukened/rr-dns-proxy/internal/dns/gateways/transport"
	"github.com/haukened/rr-dns-proxy/internal/dns/gateways/wire"
)

// startFakeResolver runs a loopback UDP resolver that answers every query
// with a single A record for the question name, echoing the query id.
func startFakeResolver(t *testing.T, answer []byte) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, wire.MaxMessageSize)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			query, err := wire.DecodePacket(buf[:n])
			if err != nil || len(query.Questions) == 0 {
				continue
			}
			resp := domain.Packet{
				Header: domain.Header{
					ID: query.Header.ID, QR: true, RD: query.Header.RD, RA: true,
					QDCount: 1, ANCount: 1,
				},
				Questions: query.Questions[:1],
				Answers: []domain.ResourceRecord{{
					Name:  query.Questions[0].Name,
					Type:  domain.RRTypeA,
					Class: domain.RRClassIN,
					TTL:   300,
					Data:  answer,
				}},
			}
			raw, err := wire.EncodePacket(resp)
			if err != nil {
				continue
			}
			_, _ = conn.WriteTo(raw, addr)
		}
	}()

	return conn.LocalAddr().String()
}

func exchange(t *testing.T, serverAddr string, query []byte) []byte {
	t.Helper()
	client, err := net.Dial("udp", serverAddr)
	require.NoError(t, err)
	defer client.Close()

	buf := make([]byte, wire.MaxMessageSize)
	var lastErr error
	// The listener starts asynchronously; retry until it answers.
	for attempt := 0; attempt < 20; attempt++ {
		if _, err := client.Write(query); err != nil {
			lastErr = err
			continue
		}
		require.NoError(t, client.SetReadDeadline(time.Now().Add(250*time.Millisecond)))
		n, err := client.Read(buf)
		if err == nil {
			return buf[:n]
		}
		lastErr = err
	}
	t.Fatalf("no reply from proxy: %v", lastErr)
	return nil
}

func TestEndToEnd_ForwardAndRewrite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}

	resolverAddr := startFakeResolver(t, []byte{93, 184, 216, 34})

	cfg := &config.AppConfig{
		Env:            "dev",
		LogLevel:       "error",
		Port:           1,
		Upstream:       resolverAddr,
		Timeout:        "2s",
		RewriteDomain:  "google.com",
		RewriteAddress: "1.3.3.7",
	}
	app, err := buildApplication(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go app.upstream.Run(ctx, app.service.HandleReply)
	t.Cleanup(func() {
		cancel()
		_ = app.transport.Stop()
		_ = app.upstream.Close()
	})

	// Bind an ephemeral loopback port instead of the configured one.
	app.transport = transport.NewUDPTransport("127.0.0.1:0", log.NewNoopLogger())
	require.NoError(t, app.transport.Start(ctx, app.service))

	query, err := wire.EncodePacket(domain.Packet{
		Header: domain.Header{ID: 0x1234, RD: true, QDCount: 1},
		Questions: []domain.Question{
			{Name: "google.com", Type: domain.RRTypeA, Class: domain.RRClassIN},
		},
	})
	require.NoError(t, err)

	raw := exchange(t, app.transport.Address(), query)

	resp, err := wire.DecodePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), resp.Header.ID)
	assert.True(t, resp.Header.QR)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, []byte{1, 3, 3, 7}, resp.Answers[0].Data, "answer rewritten on the way back")
}

func TestEndToEnd_PassThroughWithoutRewrite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}

	resolverAddr := startFakeResolver(t, []byte{93, 184, 216, 34})

	cfg := &config.AppConfig{
		Env:      "dev",
		LogLevel: "error",
		Port:     1,
		Upstream: resolverAddr,
		Timeout:  "2s",
	}
	app, err := buildApplication(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go app.upstream.Run(ctx, app.service.HandleReply)
	t.Cleanup(func() {
		cancel()
		_ = app.transport.Stop()
		_ = app.upstream.Close()
	})

	app.transport = transport.NewUDPTransport("127.0.0.1:0", log.NewNoopLogger())
	require.NoError(t, app.transport.Start(ctx, app.service))

	query, err := wire.EncodePacket(domain.Packet{
		Header: domain.Header{ID: 0xBEEF, RD: true, QDCount: 1},
		Questions: []domain.Question{
			{Name: "example.com", Type: domain.RRTypeA, Class: domain.RRClassIN},
		},
	})
	require.NoError(t, err)

	raw := exchange(t, app.transport.Address(), query)

	resp, err := wire.DecodePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), resp.Header.ID)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, []byte{93, 184, 216, 34}, resp.Answers[0].Data, "answer passes through untouched")
}
