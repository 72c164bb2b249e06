package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/nerrad567/knxip-device/internal/knxip"
)

var _ knxip.Sender = (*Multicast)(nil)

// fakeConn replays queued datagrams and records writes.
type fakeConn struct {
	mu       sync.Mutex
	inbox    [][]byte
	readErr  error
	written  [][]byte
	dst      []net.Addr
	closed   bool
	deadline time.Time
}

func (f *fakeConn) ReadFrom(b []byte) (int, *ipv4.ControlMessage, net.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, nil, nil, net.ErrClosed
	}
	if f.readErr != nil {
		err := f.readErr
		f.readErr = nil
		return 0, nil, nil, err
	}
	if len(f.inbox) == 0 {
		return 0, nil, nil, os.ErrDeadlineExceeded
	}
	n := copy(b, f.inbox[0])
	f.inbox = f.inbox[1:]
	return n, nil, &net.UDPAddr{IP: net.IPv4(192, 168, 1, 10), Port: 3671}, nil
}

func (f *fakeConn) WriteTo(b []byte, _ *ipv4.ControlMessage, dst net.Addr) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, net.ErrClosed
	}
	f.written = append(f.written, append([]byte(nil), b...))
	f.dst = append(f.dst, dst)
	return len(b), nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (f *fakeConn) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	f.deadline = t
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func newTestEndpoint(t *testing.T, conn *fakeConn) *Multicast {
	t.Helper()
	cfg := Config{ReadTimeout: time.Millisecond}.withDefaults()
	group, err := resolveGroup(cfg.Group, cfg.Port)
	if err != nil {
		t.Fatal(err)
	}
	return newMulticast(cfg, group, conn, nil)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Group != "224.0.23.12" || cfg.Port != 3671 || cfg.TTL != 16 || cfg.ReadTimeout != time.Second {
		t.Errorf("withDefaults() = %+v", cfg)
	}
}

func TestResolveGroup(t *testing.T) {
	tests := []struct {
		group string
		port  int
		ok    bool
	}{
		{"224.0.23.12", 3671, true},
		{"239.255.0.1", 1, true},
		{"192.168.1.1", 3671, false},
		{"ff02::1", 3671, false},
		{"not-an-ip", 3671, false},
		{"224.0.23.12", 70000, false},
	}
	for _, tt := range tests {
		_, err := resolveGroup(tt.group, tt.port)
		if (err == nil) != tt.ok {
			t.Errorf("resolveGroup(%q, %d) error = %v", tt.group, tt.port, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidGroup) {
			t.Errorf("resolveGroup(%q) error = %v, want ErrInvalidGroup", tt.group, err)
		}
	}
}

func TestSend(t *testing.T) {
	conn := &fakeConn{}
	m := newTestEndpoint(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame := []byte{0x06, 0x10, 0x05, 0x30}
	if err := m.Send(ctx, frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(conn.written) != 1 || !bytes.Equal(conn.written[0], frame) {
		t.Fatalf("written = %X", conn.written)
	}
	if conn.dst[0].String() != "224.0.23.12:3671" {
		t.Errorf("destination = %s", conn.dst[0])
	}
	if conn.deadline.IsZero() {
		t.Error("context deadline not applied to write")
	}
	if m.Stats().Sent != 1 {
		t.Errorf("Stats().Sent = %d", m.Stats().Sent)
	}

	cancel()
	if err := m.Send(ctx, frame); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() on cancelled context error = %v", err)
	}
}

func TestReceive(t *testing.T) {
	conn := &fakeConn{inbox: [][]byte{{1, 2, 3}}}
	m := newTestEndpoint(t, conn)

	data, src, err := m.Receive(0)
	if err != nil || !bytes.Equal(data, []byte{1, 2, 3}) || src == nil {
		t.Fatalf("Receive() = %X, %v, %v", data, src, err)
	}

	// Nothing queued: timeout is not an error.
	data, _, err = m.Receive(time.Millisecond)
	if data != nil || err != nil {
		t.Errorf("Receive() on idle socket = %X, %v; want nil, nil", data, err)
	}

	conn.readErr = errors.New("icmp unreachable")
	if _, _, err := m.Receive(0); err == nil {
		t.Error("Receive() expected read error")
	}
	if m.Stats().ReadErrors != 1 || m.Stats().Received != 1 {
		t.Errorf("Stats() = %+v", m.Stats())
	}
}

func TestRunDeliversUntilCancelled(t *testing.T) {
	conn := &fakeConn{inbox: [][]byte{{1}, {2}, {3}}}
	m := newTestEndpoint(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	var got [][]byte
	done := make(chan error)
	go func() {
		done <- m.Run(ctx, func(d []byte) {
			got = append(got, d)
			if len(got) == 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
	if len(got) != 3 || got[2][0] != 3 {
		t.Errorf("delivered %v", got)
	}
}

func TestCloseStopsRun(t *testing.T) {
	conn := &fakeConn{}
	m := newTestEndpoint(t, conn)

	done := make(chan error)
	go func() { done <- m.Run(context.Background(), func([]byte) {}) }()

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after Close")
	}
	if err := m.Send(context.Background(), []byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}

// TestListenLoopback exercises a real socket. Environments without
// multicast support skip it.
func TestListenLoopback(t *testing.T) {
	m, err := Listen(Config{Group: "239.255.71.12", Port: 36710, Loopback: true, ReadTimeout: 200 * time.Millisecond}, nil)
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer m.Close() //nolint:errcheck // Test cleanup

	if err := m.Send(context.Background(), []byte("ping")); err != nil {
		t.Skipf("multicast send unavailable: %v", err)
	}
	data, _, err := m.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if data == nil {
		t.Skip("loopback datagram not delivered")
	}
	if string(data) != "ping" {
		t.Errorf("Receive() = %q, want ping", data)
	}
}
