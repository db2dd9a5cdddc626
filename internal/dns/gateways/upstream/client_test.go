package upstream

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-dns-proxy/internal/dns/common/log"
)

// fakeResolver is a loopback UDP endpoint standing in for the upstream
// server. respond maps each received datagram to the reply it sends back.
type fakeResolver struct {
	conn net.PacketConn
}

func newFakeResolver(t *testing.T, respond func(query []byte) []byte) *fakeResolver {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			if reply := respond(buf[:n]); reply != nil {
				_, _ = conn.WriteTo(reply, addr)
			}
		}
	}()

	return &fakeResolver{conn: conn}
}

func (f *fakeResolver) address() string {
	return f.conn.LocalAddr().String()
}

func TestNewClient_RequiresAddress(t *testing.T) {
	_, err := NewClient(Options{})
	assert.ErrorContains(t, err, "address is required")
}

func TestNewClient_DialFailure(t *testing.T) {
	_, err := NewClient(Options{
		Address: "127.0.0.1:53",
		Dial: func(network, address string) (net.Conn, error) {
			return nil, errors.New("no route to host")
		},
	})
	assert.ErrorContains(t, err, "failed to connect upstream")
}

func TestClient_SendAndReceive(t *testing.T) {
	resolver := newFakeResolver(t, func(query []byte) []byte {
		reply := append([]byte{}, query...)
		reply = append(reply, 0xFF)
		return reply
	})

	client, err := NewClient(Options{
		Address: resolver.address(),
		Logger:  log.NewNoopLogger(),
	})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received [][]byte
	go client.Run(ctx, func(raw []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, raw)
	})

	require.NoError(t, client.Send([]byte{0x12, 0x34}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []byte{0x12, 0x34, 0xFF}, received[0])
	mu.Unlock()
}

func TestClient_DeliveredDatagramsAreIndependentCopies(t *testing.T) {
	resolver := newFakeResolver(t, func(query []byte) []byte {
		return append([]byte{}, query...)
	})

	client, err := NewClient(Options{Address: resolver.address(), Logger: log.NewNoopLogger()})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received [][]byte
	go client.Run(ctx, func(raw []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, raw)
	})

	require.NoError(t, client.Send([]byte{0x01, 0x01}))
	require.NoError(t, client.Send([]byte{0x02, 0x02}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, [][]byte{{0x01, 0x01}, {0x02, 0x02}}, received)
}

func TestClient_RunStopsOnContextCancel(t *testing.T) {
	resolver := newFakeResolver(t, func([]byte) []byte { return nil })

	client, err := NewClient(Options{Address: resolver.address(), Logger: log.NewNoopLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.Run(ctx, func([]byte) {})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not stop after cancellation")
	}
}

func TestClient_RunStopsOnClose(t *testing.T) {
	resolver := newFakeResolver(t, func([]byte) []byte { return nil })

	client, err := NewClient(Options{Address: resolver.address(), Logger: log.NewNoopLogger()})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		client.Run(context.Background(), func([]byte) {})
		close(done)
	}()

	require.NoError(t, client.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not stop after close")
	}

	// Close is idempotent.
	assert.NoError(t, client.Close())
}

func TestClient_Address(t *testing.T) {
	resolver := newFakeResolver(t, func([]byte) []byte { return nil })

	client, err := NewClient(Options{Address: resolver.address(), Logger: log.NewNoopLogger()})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, resolver.address(), client.Address())
}
