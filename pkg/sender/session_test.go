package sender

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ComedyRotten/bears-tp/pkg/chunker"
	"github.com/ComedyRotten/bears-tp/pkg/transport"
	"github.com/ComedyRotten/bears-tp/pkg/wire"
)

// ackEverything is a minimal receiver double: it acks whatever seqno it was
// just sent, exercising the sender's own state machine in isolation from
// pkg/receiver.
func ackEverything(t *testing.T, peerTransport transport.Transport, stop <-chan struct{}) {
	t.Helper()
	for {
		select {
		case <-stop:
			return
		default:
		}
		dg, err := peerTransport.Receive(50 * time.Millisecond)
		if err != nil {
			continue
		}
		pkt, err := wire.Decode(dg.Data)
		if err != nil || !pkt.ChecksumOK {
			continue
		}
		// Acks echo back the seqno of the frame just processed, matching
		// pkg/receiver.Connection.Accept's ack formula.
		ack := wire.Encode(wire.TypeAck, pkt.Seqno, nil)
		_ = peerTransport.Send(ack, nil)
	}
}

func TestSessionTransfersSmallFileToCompletion(t *testing.T) {
	senderT, receiverT := transport.NewMemoryPipe("sender", "receiver")

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		ackEverything(t, receiverT, stop)
		close(done)
	}()
	t.Cleanup(func() { close(stop); <-done })

	src := bytes.NewReader([]byte("the quick brown fox"))
	ck := chunker.New(src, "fox.txt", 0)
	sess, err := New(senderT, nil, ck, WithTimeout(200*time.Millisecond))
	require.NoError(t, err)

	steps := 0
	for !sess.Done() && steps < 50 {
		require.NoError(t, sess.Step())
		steps++
	}

	assert.True(t, sess.Done(), "session should reach DONE before the step budget runs out")
}

func TestFillStopsAtMaxWindow(t *testing.T) {
	senderT, _ := transport.NewMemoryPipe("sender", "receiver")

	src := bytes.NewReader(bytes.Repeat([]byte{'z'}, wire.MaxPayload*10))
	ck := chunker.New(src, "big.bin", 0)
	sess, err := New(senderT, nil, ck)
	require.NoError(t, err)

	assert.Len(t, sess.window, MaxWindow)
	assert.Equal(t, StateInit, sess.State())
}

func TestOnTimeoutClearsSentFlagsForGoBackN(t *testing.T) {
	senderT, _ := transport.NewMemoryPipe("sender", "receiver")

	src := bytes.NewReader([]byte("abc"))
	ck := chunker.New(src, "f", 0)
	sess, err := New(senderT, nil, ck)
	require.NoError(t, err)

	for _, slot := range sess.window {
		slot.Sent = true
	}
	sess.onTimeout()
	for _, slot := range sess.window {
		assert.False(t, slot.Sent)
	}
}

func TestOnAckIgnoresNonHeadAndStaleAcks(t *testing.T) {
	senderT, _ := transport.NewMemoryPipe("sender", "receiver")

	src := bytes.NewReader([]byte("abcdef"))
	ck := chunker.New(src, "f", 0)
	sess, err := New(senderT, nil, ck)
	require.NoError(t, err)

	initialLen := len(sess.window)
	head := sess.window[0]

	// Ack for a non-head slot's seqno: ignored.
	sess.onAck(sess.window[1].Seqno)
	assert.Len(t, sess.window, initialLen)

	// Ack for the head slot before it was ever sent: ignored (I5).
	sess.onAck(head.Seqno)
	assert.Len(t, sess.window, initialLen)

	// Now actually send it, then the same ack retires it.
	head.Sent = true
	sess.onAck(head.Seqno)
	assert.Len(t, sess.window, initialLen-1)

	// Replaying the same, now stale, ack leaves the window unchanged.
	sess.onAck(head.Seqno)
	assert.Len(t, sess.window, initialLen-1)
}
