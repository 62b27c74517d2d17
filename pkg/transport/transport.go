// Package transport abstracts the unreliable datagram transport BEARS-TP's
// core is layered over, so the sender and receiver state machines never
// touch a net.UDPConn directly (spec.md §1: "The core consumes only an
// unreliable datagram transport ... and a byte source/byte sink
// abstraction").
package transport

import (
	"errors"
	"net"
	"time"
)

// ErrTimeout is returned by Receive when no datagram arrives before the
// deadline. Callers treat it identically to the reference's socket.timeout.
var ErrTimeout = errors.New("transport: receive timed out")

// Addr identifies a peer. It is satisfied by *net.UDPAddr and by the fake
// addresses the in-memory transport uses in tests.
type Addr interface {
	String() string
}

// Datagram is a single received payload and the peer it came from.
type Datagram struct {
	Data []byte
	From Addr
}

// Transport is the unreliable datagram primitive: send one opaque payload
// to an address, optionally receive one with a timeout. Implementations
// never interpret the payload.
type Transport interface {
	// Send transmits data to addr. Implementations may silently drop it;
	// callers never observe send-side loss as an error on this interface.
	Send(data []byte, addr Addr) error
	// Receive blocks for up to timeout for one datagram. A zero timeout
	// blocks indefinitely, matching BasicSender's settimeout(None).
	Receive(timeout time.Duration) (Datagram, error)
	// LocalAddr is the transport's own bound address, used by senders that
	// need to report which ephemeral port they are sending from.
	LocalAddr() Addr
	// Close releases the underlying socket.
	Close() error
}

// UDPTransport implements Transport over a real net.UDPConn.
type UDPTransport struct {
	conn *net.UDPConn
	// bufSize mirrors the reference receiver's 4096-byte recvfrom buffer,
	// deliberately larger than MaxFrame so datagrams over that budget are
	// read whole rather than truncated; the wire codec applies no size
	// limit of its own.
	bufSize int
}

// ListenUDP binds a UDP socket at addr (host:port, "" host means all
// interfaces) for receiver-side use.
func ListenUDP(addr string) (*UDPTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &UDPTransport{conn: conn, bufSize: 4096}, nil
}

// DialUDP binds an ephemeral local port and fixes the peer address, for
// sender-side use (spec.md §6: one socket per endpoint, ephemeral port on
// the sender).
func DialUDP(destAddr string) (*UDPTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", destAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}
	return &UDPTransport{conn: conn, bufSize: 4096}, nil
}

func (t *UDPTransport) Send(data []byte, addr Addr) error {
	if udpAddr, ok := addr.(*net.UDPAddr); ok && udpAddr != nil {
		_, err := t.conn.WriteToUDP(data, udpAddr)
		return err
	}
	// Dial'd connections (sender side) already have a fixed peer.
	_, err := t.conn.Write(data)
	return err
}

func (t *UDPTransport) Receive(timeout time.Duration) (Datagram, error) {
	if timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return Datagram{}, err
		}
	} else {
		if err := t.conn.SetReadDeadline(time.Time{}); err != nil {
			return Datagram{}, err
		}
	}

	buf := make([]byte, t.bufSize)
	n, from, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Datagram{}, ErrTimeout
		}
		return Datagram{}, err
	}

	data := make([]byte, n)
	copy(data, buf[:n])
	return Datagram{Data: data, From: from}, nil
}

func (t *UDPTransport) LocalAddr() Addr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
