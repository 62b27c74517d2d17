// Package receiver implements the BEARS-TP receiver side: per-peer
// connection tracking with idle eviction (spec.md §4.6, component C5), the
// cumulative-ack reassembler (spec.md §4.5, component C6), and the
// blocking event loop that ties them together (component C7). It
// generalizes the teacher's source/server.Server.listen loop (map of
// *Player keyed by nothing more than the RakNet session layer) to a map of
// *Connection keyed directly by peer address, following
// original_source/Receiver.py's Connection/Receiver split.
package receiver

import (
	"io"
	"sort"
	"time"
)

// MaxBuf bounds the out-of-order reorder buffer per connection
// (MAX_BUF in spec.md §3).
const MaxBuf = 5

// Sink is the write-only byte sink abstraction for the output file
// (spec.md §1's "byte source/byte sink" external collaborator).
type Sink interface {
	io.Writer
	io.Closer
}

// Connection is one peer's in-progress transfer (spec.md §3).
type Connection struct {
	ID string // short correlation id (rs/xid), for logging only

	Peer string // address identity key, e.g. "1.2.3.4:5555"

	expectedOffset uint32
	buffer         map[uint32][]byte
	lastActivity   time.Time
	sink           Sink
}

// NewConnection creates a Connection that expects its first contiguous
// byte at startOffset (the seqno of the `start` frame that created it) and
// writes accepted bytes to sink.
func NewConnection(id, peer string, startOffset uint32, sink Sink) *Connection {
	return &Connection{
		ID:             id,
		Peer:           peer,
		expectedOffset: startOffset,
		buffer:         make(map[uint32][]byte),
		lastActivity:   time.Now(),
		sink:           sink,
	}
}

// LastActivity reports the wall-clock time of the most recent packet passed
// to Accept, whether or not it was accepted (used by the connection table's
// idle sweep).
func (c *Connection) LastActivity() time.Time { return c.lastActivity }

// BufferLen reports the current reorder-buffer occupancy, for metrics and
// tests.
func (c *Connection) BufferLen() int { return len(c.buffer) }

// Accept implements the reassembler (spec.md §4.5) for one in-sequence
// frame (start, data or end alike: the reference's Connection.ack runs
// identically for all three, and only the caller decides whether the
// drained bytes are meaningful file content). It returns the ack offset to
// send back to the sender, whether the packet was accepted into the buffer
// at all (accepted=false means the packet was dropped per the acceptance
// rule in spec.md §8 property 6), and the contiguous run of payloads now
// ready to persist, in ascending offset order.
//
// Acceptance rule: seqno == expectedOffset AND the buffer currently holds
// fewer than MaxBuf entries. Once accepted, the buffer is drained for every
// contiguous run starting at expectedOffset, advancing expectedOffset past
// it. The ack offset returned is always expectedOffset - len(bytes),
// computed even when the packet was not accepted, matching the reference's
// Connection.ack, which always returns `self.current_seqno - len(data)`
// regardless of whether anything changed.
func (c *Connection) Accept(seqno uint32, data []byte) (ack uint32, accepted bool, drained [][]byte) {
	c.lastActivity = time.Now()

	if seqno == c.expectedOffset && len(c.buffer) < MaxBuf {
		accepted = true
		c.buffer[seqno] = data
		drained = c.drain()
	}

	return c.expectedOffset - uint32(len(data)), accepted, drained
}

// Write persists drained payloads to the sink, in the order given. Callers
// handling a `start` frame discard the drained basename instead of calling
// this, mirroring the reference receiver's _handle_start never calling
// conn.record.
func (c *Connection) Write(drained [][]byte) {
	for _, b := range drained {
		_, _ = c.sink.Write(b)
	}
}

// drain collects every contiguous run starting at expectedOffset, stopping
// at the first gap (spec.md §4.5 item 2), and advances expectedOffset past
// it. I2/I4: bytes are ordered strictly and each offset drains at most once.
func (c *Connection) drain() [][]byte {
	var drained [][]byte
	for {
		bytes, ok := c.buffer[c.expectedOffset]
		if !ok {
			return drained
		}
		drained = append(drained, bytes)
		delete(c.buffer, c.expectedOffset)
		c.expectedOffset += uint32(len(bytes))
	}
}

// bufferedOffsets returns the currently buffered seqnos in ascending
// order, for debug logging.
func (c *Connection) bufferedOffsets() []uint32 {
	offsets := make([]uint32, 0, len(c.buffer))
	for k := range c.buffer {
		offsets = append(offsets, k)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets
}

// Close flushes and closes the underlying sink (spec.md §3 Connection
// lifecycle: "destroyed when idle beyond the configured timeout, or at
// process shutdown").
func (c *Connection) Close() error {
	return c.sink.Close()
}
