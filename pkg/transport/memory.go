package transport

import (
	"fmt"
	"sync"
	"time"
)

// memAddr is the Addr implementation MemoryTransport uses, letting sender
// and receiver tests run the real state machines without a socket.
type memAddr string

func (a memAddr) String() string { return string(a) }

// MemoryNetwork is a registry of in-process transports addressed by name,
// so a test can wire one receiver-side MemoryTransport against several
// peers the way one UDP socket serves many remote addresses in production.
type MemoryNetwork struct {
	mu    sync.Mutex
	peers map[string]*MemoryTransport
}

// NewMemoryNetwork builds an empty registry.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{peers: make(map[string]*MemoryTransport)}
}

// NewTransport registers and returns a MemoryTransport at addr on net.
func (n *MemoryNetwork) NewTransport(addr string) *MemoryTransport {
	t := &MemoryTransport{
		self:    memAddr(addr),
		in:      make(chan Datagram, 64),
		network: n,
	}
	n.mu.Lock()
	n.peers[addr] = t
	n.mu.Unlock()
	return t
}

func (n *MemoryNetwork) lookup(addr string) (*MemoryTransport, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.peers[addr]
	return t, ok
}

// NewMemoryPipe is a convenience for the common two-party case: a sender
// and a receiver, each addressing the other directly.
func NewMemoryPipe(selfAddr, peerAddr string) (a, b *MemoryTransport) {
	n := NewMemoryNetwork()
	a = n.NewTransport(selfAddr)
	b = n.NewTransport(peerAddr)
	a.fixedPeer = memAddr(peerAddr)
	b.fixedPeer = memAddr(selfAddr)
	return a, b
}

// MemoryTransport is an in-process Transport implementation. Sends are
// routed by address through the owning MemoryNetwork rather than over a
// real socket.
type MemoryTransport struct {
	self    memAddr
	in      chan Datagram
	network *MemoryNetwork
	// fixedPeer is set when this transport was built via NewMemoryPipe, so
	// Send with a nil addr (mirroring a dialed UDPTransport) still resolves.
	fixedPeer memAddr
}

func (m *MemoryTransport) Send(data []byte, addr Addr) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	target := m.fixedPeer
	if addr != nil {
		target = memAddr(addr.String())
	}
	if target == "" {
		return fmt.Errorf("transport: memory send with no destination address")
	}

	t, ok := m.network.lookup(string(target))
	if !ok {
		return fmt.Errorf("transport: no memory peer registered at %q", target)
	}
	t.in <- Datagram{Data: cp, From: m.self}
	return nil
}

func (m *MemoryTransport) Receive(timeout time.Duration) (Datagram, error) {
	if timeout <= 0 {
		return <-m.in, nil
	}
	select {
	case dg := <-m.in:
		return dg, nil
	case <-time.After(timeout):
		return Datagram{}, ErrTimeout
	}
}

func (m *MemoryTransport) LocalAddr() Addr { return m.self }

func (m *MemoryTransport) Close() error { return nil }
