// Package udp provides a transport.Channel implementation over UDP
// datagrams. Every redundancy PDU fits in a single datagram (at most
// 1113 bytes), so this package carries no fragmentation or reassembly
// logic: one Send call is one datagram, one Receive call drains at most
// one pending datagram. Retransmission and duplicate detection are the
// redundancy and safety layers' job, not the transport's.
package udp

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sbb-digital/go-rasta/logx"
	"github.com/sbb-digital/go-rasta/transport"
)

var errNoMessage = transport.ErrNoMessageReceived

var _ transport.Channel = (*Channel)(nil)

const (
	// DefaultReadBufferSize is the OS socket receive buffer size.
	DefaultReadBufferSize = 4096

	// DefaultWriteBufferSize is the OS socket send buffer size.
	DefaultWriteBufferSize = 4096

	// DefaultPollTimeout bounds how long Receive blocks waiting for a
	// datagram before reporting ErrNoMessageReceived.
	DefaultPollTimeout = 5 * time.Millisecond
)

// Channel is a transport.Channel backed by one net.UDPConn, serving one
// configured transport channel ID.
type Channel struct {
	id              uint32
	conn            *net.UDPConn
	remoteAddr      *net.UDPAddr
	readBufferSize  int
	writeBufferSize int
	pollTimeout     time.Duration
	log             logx.Logger
}

// Option configures a Channel at construction time.
type Option func(*Channel)

// WithReadBufferSize overrides the OS socket receive buffer size.
func WithReadBufferSize(size int) Option {
	return func(c *Channel) {
		if size > 0 {
			c.readBufferSize = size
		}
	}
}

// WithWriteBufferSize overrides the OS socket send buffer size.
func WithWriteBufferSize(size int) Option {
	return func(c *Channel) {
		if size > 0 {
			c.writeBufferSize = size
		}
	}
}

// WithPollTimeout overrides how long Receive waits for a datagram before
// returning transport.ErrNoMessageReceived.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.pollTimeout = d
		}
	}
}

// WithLogger attaches a logx.Logger that traces each datagram sent or
// received with a correlation ID, for stitching transport-level logs to
// the redundancy/safety layers' own log lines. Without this option the
// channel logs nothing.
func WithLogger(log logx.Logger) Option {
	return func(c *Channel) {
		c.log = log
	}
}

// Listen opens a Channel bound to localAddr ("host:port" or ":port"),
// for a transport channel that receives from whichever peer last sent to
// it and replies to that same peer.
func Listen(id uint32, localAddr string, opts ...Option) (*Channel, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %q: %w", localAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: listen %q: %w", localAddr, err)
	}
	return newChannel(id, conn, nil, opts...)
}

// Dial opens a Channel connected to remoteAddr, for a transport channel
// whose peer address is known up front.
func Dial(id uint32, remoteAddr string, opts ...Option) (*Channel, error) {
	addr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %q: %w", remoteAddr, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %q: %w", remoteAddr, err)
	}
	return newChannel(id, conn, addr, opts...)
}

func newChannel(id uint32, conn *net.UDPConn, remoteAddr *net.UDPAddr, opts ...Option) (*Channel, error) {
	c := &Channel{
		id:              id,
		conn:            conn,
		remoteAddr:      remoteAddr,
		readBufferSize:  DefaultReadBufferSize,
		writeBufferSize: DefaultWriteBufferSize,
		pollTimeout:     DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := conn.SetReadBuffer(c.readBufferSize); err != nil {
		return nil, fmt.Errorf("udp: set read buffer: %w", err)
	}
	if err := conn.SetWriteBuffer(c.writeBufferSize); err != nil {
		return nil, fmt.Errorf("udp: set write buffer: %w", err)
	}
	return c, nil
}

// ID implements transport.Channel.
func (c *Channel) ID() uint32 {
	return c.id
}

// Send implements transport.Channel. For a Listen-mode channel, it
// replies to the last peer address observed in Receive; remoteAddr must
// therefore be set by a prior Receive call if this channel wasn't opened
// with Dial.
func (c *Channel) Send(data []byte) error {
	var err error
	switch {
	case c.conn.RemoteAddr() != nil:
		// Dial-mode socket is connected; WriteToUDP is refused on it.
		_, err = c.conn.Write(data)
	case c.remoteAddr != nil:
		_, err = c.conn.WriteToUDP(data, c.remoteAddr)
	default:
		return fmt.Errorf("udp: channel %d has no known peer address yet", c.id)
	}
	if err != nil {
		return fmt.Errorf("udp: send on channel %d: %w", c.id, err)
	}
	if c.log != nil {
		c.log.Debug("udp channel %d sent %d bytes [cid=%s]", c.id, len(data), uuid.New())
	}
	return nil
}

// Receive implements transport.Channel, polling with a short read
// deadline so the caller's tick loop never blocks.
func (c *Channel) Receive(buf []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pollTimeout)); err != nil {
		return 0, fmt.Errorf("udp: set read deadline on channel %d: %w", c.id, err)
	}
	n, addr, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, errNoMessage
		}
		return 0, fmt.Errorf("udp: receive on channel %d: %w", c.id, err)
	}
	c.remoteAddr = addr
	if c.log != nil {
		c.log.Debug("udp channel %d received %d bytes from %s [cid=%s]", c.id, n, addr, uuid.New())
	}
	return n, nil
}

// Close implements transport.Channel.
func (c *Channel) Close() error {
	return c.conn.Close()
}
