package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	// maxDatagram comfortably exceeds the largest routing frame.
	maxDatagram = 512

	defaultGroup       = "224.0.23.12"
	defaultPort        = 3671
	defaultTTL         = 16
	defaultReadTimeout = time.Second
)

// Config describes the multicast endpoint.
type Config struct {
	Group string
	Port  int

	// Interface names the network interface to join on. Empty lets the
	// kernel choose.
	Interface string

	// Loopback delivers our own frames back to local listeners.
	Loopback bool
	TTL      int

	// ReadTimeout is the poll period of Run and the default for Receive.
	ReadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Group == "" {
		c.Group = defaultGroup
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.TTL == 0 {
		c.TTL = defaultTTL
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	return c
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// packetConn is the subset of *ipv4.PacketConn the endpoint uses.
type packetConn interface {
	ReadFrom(b []byte) (int, *ipv4.ControlMessage, net.Addr, error)
	WriteTo(b []byte, cm *ipv4.ControlMessage, dst net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Stats counts datagrams moved by the endpoint.
type Stats struct {
	Received   uint64
	Sent       uint64
	ReadErrors uint64
}

// Multicast is a joined routing group endpoint.
type Multicast struct {
	cfg   Config
	group *net.UDPAddr
	conn  packetConn
	leave func() error
	log   Logger

	readMu sync.Mutex
	buf    []byte

	closeOnce sync.Once
	closed    atomic.Bool

	received   atomic.Uint64
	sent       atomic.Uint64
	readErrors atomic.Uint64
}

// Listen binds the group port on all addresses and joins the group.
func Listen(cfg Config, log Logger) (*Multicast, error) {
	cfg = cfg.withDefaults()

	group, err := resolveGroup(cfg.Group, cfg.Port)
	if err != nil {
		return nil, err
	}

	var ifi *net.Interface
	if cfg.Interface != "" {
		ifi, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("looking up interface %q: %w", cfg.Interface, err)
		}
	}

	c, err := net.ListenPacket("udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("binding port %d: %w", cfg.Port, err)
	}
	pc := ipv4.NewPacketConn(c)

	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: group.IP}); err != nil {
		c.Close() //nolint:errcheck // join error takes precedence
		return nil, fmt.Errorf("joining %s: %w", group.IP, err)
	}
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			c.Close() //nolint:errcheck // setup error takes precedence
			return nil, fmt.Errorf("selecting interface %s: %w", ifi.Name, err)
		}
	}
	if err := pc.SetMulticastLoopback(cfg.Loopback); err != nil {
		c.Close() //nolint:errcheck // setup error takes precedence
		return nil, fmt.Errorf("setting loopback: %w", err)
	}
	if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
		c.Close() //nolint:errcheck // setup error takes precedence
		return nil, fmt.Errorf("setting ttl: %w", err)
	}

	m := newMulticast(cfg, group, pc, log)
	m.leave = func() error { return pc.LeaveGroup(ifi, &net.UDPAddr{IP: group.IP}) }
	m.log.Info("joined multicast group", "group", group.String(), "interface", cfg.Interface, "loopback", cfg.Loopback)
	return m, nil
}

func newMulticast(cfg Config, group *net.UDPAddr, conn packetConn, log Logger) *Multicast {
	if log == nil {
		log = nopLogger{}
	}
	return &Multicast{
		cfg:   cfg,
		group: group,
		conn:  conn,
		log:   log,
		buf:   make([]byte, maxDatagram),
	}
}

func resolveGroup(group string, port int) (*net.UDPAddr, error) {
	ip := net.ParseIP(group).To4()
	if ip == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGroup, group)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d", ErrInvalidGroup, port)
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// Group returns the destination of sent frames.
func (m *Multicast) Group() *net.UDPAddr { return m.group }

// Send writes one frame to the group. The context deadline, if any, bounds
// the write.
func (m *Multicast) Send(ctx context.Context, frame []byte) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := m.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := m.conn.WriteTo(frame, nil, m.group); err != nil {
		return fmt.Errorf("sending to %s: %w", m.group, err)
	}
	m.sent.Add(1)
	return nil
}

// Receive waits up to timeout for one datagram. It returns a nil slice and
// nil error when nothing arrived in time. The returned slice is a copy.
func (m *Multicast) Receive(timeout time.Duration) ([]byte, net.Addr, error) {
	if m.closed.Load() {
		return nil, nil, ErrClosed
	}
	if timeout <= 0 {
		timeout = m.cfg.ReadTimeout
	}

	m.readMu.Lock()
	defer m.readMu.Unlock()

	if err := m.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, fmt.Errorf("setting read deadline: %w", err)
	}
	n, _, src, err := m.conn.ReadFrom(m.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil, nil
		}
		if m.closed.Load() {
			return nil, nil, ErrClosed
		}
		m.readErrors.Add(1)
		return nil, nil, fmt.Errorf("receiving: %w", err)
	}
	m.received.Add(1)
	return append([]byte(nil), m.buf[:n]...), src, nil
}

// Run receives datagrams and passes each to handle until ctx is cancelled
// or the endpoint is closed. Read errors are logged and the loop continues.
func (m *Multicast) Run(ctx context.Context, handle func(datagram []byte)) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		data, src, err := m.Receive(m.cfg.ReadTimeout)
		switch {
		case errors.Is(err, ErrClosed):
			return nil
		case err != nil:
			m.log.Warn("multicast receive failed", "error", err)
			continue
		case data == nil:
			continue
		}
		m.log.Debug("datagram received", "from", src, "bytes", len(data))
		handle(data)
	}
}

// Stats returns the datagram counters.
func (m *Multicast) Stats() Stats {
	return Stats{
		Received:   m.received.Load(),
		Sent:       m.sent.Load(),
		ReadErrors: m.readErrors.Load(),
	}
}

// Close leaves the group and closes the socket. It is safe to call more
// than once.
func (m *Multicast) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		if m.leave != nil {
			if lerr := m.leave(); lerr != nil {
				m.log.Warn("leaving multicast group failed", "error", lerr)
			}
		}
		err = m.conn.Close()
	})
	return err
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
