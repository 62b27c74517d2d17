// Package sender implements the BEARS-TP sender state machine (spec.md
// §4.4, component C4): a sliding window of WindowSlots driven through
// INIT -> TRANSFER -> ENDING -> DONE by acks and timeouts, go-back-N on
// loss. It is the Go-idiomatic replacement for original_source/Sender.py's
// msg_window list-of-lists, generalizing the teacher's
// protocol.Session.Update send loop (source/protocol/raknet.go) from a
// game-session keepalive loop to a single-file transfer.
package sender

import (
	"errors"
	"io"
	"time"

	"github.com/ComedyRotten/bears-tp/pkg/chunker"
	"github.com/ComedyRotten/bears-tp/pkg/transport"
	"github.com/ComedyRotten/bears-tp/pkg/wire"
)

// State is the sender's lifecycle stage (spec.md §4.4).
type State int

const (
	StateInit State = iota
	StateTransfer
	StateEnding
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateTransfer:
		return "TRANSFER"
	case StateEnding:
		return "ENDING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// MaxWindow is the sliding window's capacity (MAX_WIN in spec.md §3).
const MaxWindow = 5

// DefaultTimeout is the receive-with-timeout applied each iteration
// (rtimeout in spec.md §4.4), matching the reference's default of 10s.
const DefaultTimeout = 10 * time.Second

// WindowSlot is one in-flight (or about-to-be-sent) chunk (spec.md §3).
type WindowSlot struct {
	Seqno uint32
	Bytes []byte
	Sent  bool
	// kind is the msg_type this slot transmits as: start for the head slot
	// while State is Init, end for the terminal empty chunk (in whichever
	// state it is sent), data otherwise.
	kind wire.MsgType
}

// Metrics is the subset of internal/metrics.Registry the sender session
// touches, kept as an interface so tests don't need a real registry.
type Metrics interface {
	ObserveSent(msgType wire.MsgType)
	ObserveRetransmit()
	ObserveWindowSize(n int)
}

// NopMetrics implements Metrics with no-ops, the default when the caller
// doesn't wire a real registry.
type NopMetrics struct{}

func (NopMetrics) ObserveSent(wire.MsgType) {}
func (NopMetrics) ObserveRetransmit()       {}
func (NopMetrics) ObserveWindowSize(int)    {}

// Session is a single sender->receiver transfer. It owns the window, the
// chunker feeding it, and the transport it speaks over. One Session
// transfers exactly one file, matching spec.md's "session" glossary entry.
type Session struct {
	transport transport.Transport
	peer      transport.Addr
	chunker   *chunker.Chunker
	timeout   time.Duration
	metrics   Metrics

	state  State
	window []*WindowSlot
}

// Option configures a Session at construction.
type Option func(*Session)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithMetrics wires a Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New builds a Session and prefills its window from c (spec.md §4.4:
// "At initialisation it prefills the window from the chunker").
func New(t transport.Transport, peer transport.Addr, c *chunker.Chunker, opts ...Option) (*Session, error) {
	s := &Session{
		transport: t,
		peer:      peer,
		chunker:   c,
		timeout:   DefaultTimeout,
		metrics:   NopMetrics{},
		state:     StateInit,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.fill(); err != nil {
		return nil, err
	}
	// The head slot, whatever it is, is always tagged `start` while the
	// session hasn't advanced past INIT.
	if len(s.window) > 0 {
		s.window[0].kind = wire.TypeStart
	}
	return s, nil
}

// State reports the session's current lifecycle stage.
func (s *Session) State() State { return s.state }

// Done reports whether the transfer has completed (spec.md §4.4: DONE).
func (s *Session) Done() bool { return s.state == StateDone }

// fill pulls chunks from the chunker until the window holds MaxWindow
// slots or the chunker is exhausted (the "window refill" operation of
// spec.md §4.4, also used for the initial prefill).
func (s *Session) fill() error {
	for len(s.window) < MaxWindow {
		c, err := s.chunker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		kind := wire.TypeData
		if c.Final {
			kind = wire.TypeEnd
		}
		s.window = append(s.window, &WindowSlot{Seqno: c.Seqno, Bytes: c.Data, kind: kind})
		if c.Final {
			break
		}
	}
	s.metrics.ObserveWindowSize(len(s.window))
	return nil
}

// Step runs one iteration of the sender loop: transmit, then receive one
// packet with timeout (spec.md §4.4). It returns after at most one
// transport round-trip attempt, so callers can drive it from their own
// loop (and tests can single-step it).
func (s *Session) Step() error {
	s.transmit()

	dg, err := s.transport.Receive(s.timeout)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			s.onTimeout()
			return nil
		}
		return err
	}

	pkt, err := wire.Decode(dg.Data)
	if err != nil || !pkt.ChecksumOK {
		// Corrupt or malformed: treated exactly like a timeout per
		// spec.md §7, forcing a go-back-N retransmit next iteration.
		s.onTimeout()
		return nil
	}

	if pkt.Type == wire.TypeAck {
		s.onAck(pkt.Seqno)
	}
	return nil
}

// transmit performs act (a) of one loop iteration, per state.
func (s *Session) transmit() {
	if len(s.window) == 0 {
		return
	}

	switch s.state {
	case StateInit:
		s.send(s.window[0])
	case StateTransfer:
		// Find the first unsent slot; send it and every slot after it.
		firstUnsent := -1
		for i, slot := range s.window {
			if !slot.Sent {
				firstUnsent = i
				break
			}
		}
		if firstUnsent < 0 {
			return
		}
		for _, slot := range s.window[firstUnsent:] {
			s.send(slot)
		}
	case StateEnding:
		s.send(s.window[0])
	case StateDone:
		// terminate; nothing to transmit.
	}
}

func (s *Session) send(slot *WindowSlot) {
	frame := wire.Encode(slot.kind, slot.Seqno, slot.Bytes)
	_ = s.transport.Send(frame, s.peer)
	slot.Sent = true
	s.metrics.ObserveSent(slot.kind)
}

// onTimeout clears every slot's sent flag so the next transmit retransmits
// the whole window in order (go-back-N, spec.md §4.4 / §7).
func (s *Session) onTimeout() {
	for _, slot := range s.window {
		slot.Sent = false
	}
	if len(s.window) > 0 {
		s.metrics.ObserveRetransmit()
	}
}

// onAck implements spec.md §4.4's strict in-order acknowledgement: only
// the head slot, and only once it has actually been sent, can be retired.
func (s *Session) onAck(seqno uint32) {
	if len(s.window) == 0 {
		return
	}
	head := s.window[0]
	if head.Seqno != seqno {
		return // I5: unmatched acks (including acks to non-head slots) are ignored.
	}
	if !head.Sent {
		return
	}

	s.window = s.window[1:]
	s.refillAfterRemoval()
}

// refillAfterRemoval implements the state transitions spec.md §4.4
// attaches to window refill after a head removal.
func (s *Session) refillAfterRemoval() {
	wasInit := s.state == StateInit
	_ = s.fill()

	if wasInit {
		s.state = StateTransfer
	}

	if s.state == StateEnding && len(s.window) == 0 {
		s.state = StateDone
		return
	}

	if len(s.window) <= 1 && s.state != StateEnding {
		s.state = StateEnding
	}
}
