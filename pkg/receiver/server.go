package receiver

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/ComedyRotten/bears-tp/pkg/transport"
	"github.com/ComedyRotten/bears-tp/pkg/wire"
)

// Metrics is the subset of internal/metrics.Registry the Server touches.
type Metrics interface {
	ObserveDrop(reason string)
	ObserveConnectionOpened()
	SetActiveConnections(n int)
	SetReorderBufferSize(peer string, n int)
	DropReorderBufferSize(peer string)
}

// NopMetrics implements Metrics with no-ops.
type NopMetrics struct{}

func (NopMetrics) ObserveDrop(string)               {}
func (NopMetrics) ObserveConnectionOpened()         {}
func (NopMetrics) SetActiveConnections(int)         {}
func (NopMetrics) SetReorderBufferSize(string, int) {}
func (NopMetrics) DropReorderBufferSize(string)     {}

// SinkOpener opens the byte sink a new connection writes its file to, named
// after the basename carried in the `start` frame. Production wiring opens
// an *os.File; tests substitute an in-memory sink.
type SinkOpener func(peer, basename string) (Sink, error)

// Server is the receiver's blocking event loop (spec.md §4.6, component
// C7), generalizing the teacher's source/server/server.Server.listen
// method: one blocking receive-with-timeout per iteration, dispatch by
// packet kind, periodic idle sweep. Unlike the teacher, BEARS-TP has no
// per-packet goroutine dispatch — the reference protocol is single-threaded
// and strictly cooperative, so Server.Run never spawns handler goroutines.
type Server struct {
	transport   transport.Transport
	table       *Table
	openSink    SinkOpener
	idleTimeout time.Duration
	metrics     Metrics
	log         *logrus.Logger
}

// Option configures a Server at construction.
type Option func(*Server)

func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}

func WithMetrics(m Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithLogger(l *logrus.Logger) Option {
	return func(s *Server) { s.log = l }
}

// DefaultIdleTimeout matches the sender's DefaultTimeout: a connection that
// hasn't heard from its peer in that long is presumed abandoned.
const DefaultIdleTimeout = 10 * time.Second

// NewServer builds a Server bound to t, opening sinks via openSink.
func NewServer(t transport.Transport, openSink SinkOpener, opts ...Option) *Server {
	s := &Server{
		transport:   t,
		table:       NewTable(),
		openSink:    openSink,
		idleTimeout: DefaultIdleTimeout,
		metrics:     NopMetrics{},
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileSinkOpener opens an *os.File named "out_<basename>" in dir, the
// production SinkOpener (spec.md §4.6 step 3).
func FileSinkOpener(dir string) SinkOpener {
	return func(peer, basename string) (Sink, error) {
		path := fmt.Sprintf("%s/out_%s", dir, basename)
		return os.Create(path)
	}
}

// Run drives the event loop until stop is closed. Each iteration blocks for
// up to one idle-sweep interval waiting for a datagram, dispatches it if
// one arrived, then sweeps the connection table for idle entries — mirroring
// the teacher's listen()+sessionCleanupLoop() pair collapsed onto a single
// goroutine, appropriate for this protocol's one-packet-at-a-time design.
func (s *Server) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			s.table.CloseAll()
			return nil
		default:
		}

		dg, err := s.transport.Receive(s.idleTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				s.sweep()
				continue
			}
			return err
		}

		s.handle(dg)
		s.sweep()
	}
}

// handle dispatches one received datagram (spec.md §4.6 steps 1-4).
func (s *Server) handle(dg transport.Datagram) {
	peer := dg.From.String()

	pkt, err := wire.Decode(dg.Data)
	if err != nil || !pkt.ChecksumOK {
		s.metrics.ObserveDrop("checksum")
		s.log.WithField("peer", peer).Debug("dropped frame: bad checksum or malformed")
		return
	}

	switch pkt.Type {
	case wire.TypeStart:
		s.dispatchStart(peer, dg.From, pkt)
	case wire.TypeData, wire.TypeEnd:
		s.dispatchData(peer, dg.From, pkt)
	case wire.TypeAck:
		// Receiver never receives acks in this protocol's roles; ignore.
	default:
		s.metrics.ObserveDrop("unknown_type")
	}
}

// dispatchStart opens a connection for peer if none exists yet, or reuses
// the existing one (spec.md §1 allows datagram duplication; a duplicated or
// delayed `start` for an already in-progress transfer must not truncate the
// output file or reset the reassembler's offset, matching
// original_source/Receiver.py's _handle_start, which only constructs a
// Connection "if address not in self.connections").
func (s *Server) dispatchStart(peer string, addr transport.Addr, pkt wire.Packet) {
	conn, ok := s.table.Get(peer)
	if !ok {
		basename := string(pkt.Data)
		sink, err := s.openSink(peer, basename)
		if err != nil {
			s.log.WithField("peer", peer).WithError(err).Error("failed to open sink")
			return
		}

		conn = NewConnection(xid.New().String(), peer, pkt.Seqno, sink)
		s.table.Put(conn)
		s.metrics.ObserveConnectionOpened()
		s.metrics.SetActiveConnections(s.table.Len())
		s.log.WithFields(logrus.Fields{"peer": peer, "conn": conn.ID, "file": basename}).Info("connection opened")
	}

	// The start frame's payload is the filename, already consumed above;
	// its drained bytes are discarded, never written to the sink.
	s.ackFor(addr, conn, pkt)
}

// dispatchData routes a data or end frame to its connection's reassembler.
// Frames from peers with no open connection are dropped silently
// (spec.md §7: "Data/end frame for unknown connection: Drop silently").
func (s *Server) dispatchData(peer string, addr transport.Addr, pkt wire.Packet) {
	conn, ok := s.table.Get(peer)
	if !ok {
		s.metrics.ObserveDrop("unknown_peer")
		return
	}

	accepted := s.ackFor(addr, conn, pkt)
	s.metrics.SetReorderBufferSize(peer, conn.BufferLen())

	if pkt.Type == wire.TypeEnd && accepted && conn.BufferLen() == 0 {
		_ = conn.Close()
		// Connection.Accept only drains up to the last contiguous byte; an
		// end frame accepted with an empty buffer means the file is
		// complete and the connection can close immediately rather than
		// waiting for the idle sweep.
	}
}

// ackFor runs the reassembler, persists any newly drained bytes (skipped
// for `start` frames, whose payload is only ever a filename), and sends the
// resulting cumulative ack. It reports whether the reassembler accepted pkt.
func (s *Server) ackFor(addr transport.Addr, conn *Connection, pkt wire.Packet) bool {
	ack, accepted, drained := conn.Accept(pkt.Seqno, pkt.Data)
	if !accepted {
		s.metrics.ObserveDrop("out_of_order")
		s.log.WithFields(logrus.Fields{
			"peer": conn.Peer, "conn": conn.ID, "seqno": pkt.Seqno, "buffered": conn.bufferedOffsets(),
		}).Debug("dropped out-of-order frame")
	} else if pkt.Type != wire.TypeStart {
		conn.Write(drained)
	}
	frame := wire.Encode(wire.TypeAck, ack, nil)
	_ = s.transport.Send(frame, addr)
	return accepted
}

// sweep evicts idle connections and republishes the active-connection gauge.
func (s *Server) sweep() {
	evicted := s.table.Sweep(s.idleTimeout)
	for _, peer := range evicted {
		s.metrics.DropReorderBufferSize(peer)
		s.log.WithField("peer", peer).Info("connection evicted: idle timeout")
	}
	if len(evicted) > 0 {
		s.metrics.SetActiveConnections(s.table.Len())
	}
}
