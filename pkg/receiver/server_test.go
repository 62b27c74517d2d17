package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ComedyRotten/bears-tp/pkg/transport"
	"github.com/ComedyRotten/bears-tp/pkg/wire"
)

func openMemSink() (SinkOpener, map[string]*memSink) {
	sinks := make(map[string]*memSink)
	return func(peer, basename string) (Sink, error) {
		s := &memSink{}
		sinks[peer+"/"+basename] = s
		return s, nil
	}, sinks
}

func TestServerHandlesFullTransferAndAcks(t *testing.T) {
	senderT, receiverT := transport.NewMemoryPipe("client", "server")

	opener, sinks := openMemSink()
	srv := NewServer(receiverT, opener, WithIdleTimeout(200*time.Millisecond))

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.Run(stop) }()
	t.Cleanup(func() { close(stop); <-done })

	send := func(msgType wire.MsgType, seqno uint32, data []byte) wire.Packet {
		frame := wire.Encode(msgType, seqno, data)
		require.NoError(t, senderT.Send(frame, nil))
		dg, err := senderT.Receive(time.Second)
		require.NoError(t, err)
		pkt, err := wire.Decode(dg.Data)
		require.NoError(t, err)
		require.True(t, pkt.ChecksumOK)
		return pkt
	}

	// Accepted acks echo back the seqno of the frame just processed: a
	// go-back-N ack the sender matches exactly against its head slot.
	ack := send(wire.TypeStart, 0, []byte("hello.txt"))
	assert.Equal(t, wire.TypeAck, ack.Type)
	assert.Equal(t, uint32(0), ack.Seqno)

	dataSeqno := uint32(len("hello.txt"))
	ack = send(wire.TypeData, dataSeqno, []byte("body"))
	assert.Equal(t, wire.TypeAck, ack.Type)
	assert.Equal(t, dataSeqno, ack.Seqno)

	endSeqno := dataSeqno + uint32(len("body"))
	ack = send(wire.TypeEnd, endSeqno, nil)
	assert.Equal(t, wire.TypeAck, ack.Type)
	assert.Equal(t, endSeqno, ack.Seqno)

	sink := sinks["client/hello.txt"]
	require.NotNil(t, sink)
	assert.Equal(t, "body", sink.String())
	assert.True(t, sink.closed, "connection should close itself once the end frame drains with an empty buffer")
}

func TestServerReusesConnectionOnDuplicateStart(t *testing.T) {
	senderT, receiverT := transport.NewMemoryPipe("client", "server")

	opener, sinks := openMemSink()
	srv := NewServer(receiverT, opener, WithIdleTimeout(time.Second))

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.Run(stop) }()
	t.Cleanup(func() { close(stop); <-done })

	send := func(msgType wire.MsgType, seqno uint32, data []byte) wire.Packet {
		frame := wire.Encode(msgType, seqno, data)
		require.NoError(t, senderT.Send(frame, nil))
		dg, err := senderT.Receive(time.Second)
		require.NoError(t, err)
		pkt, err := wire.Decode(dg.Data)
		require.NoError(t, err)
		return pkt
	}

	send(wire.TypeStart, 0, []byte("hello.txt"))

	dataSeqno := uint32(len("hello.txt"))
	send(wire.TypeData, dataSeqno, []byte("body"))

	firstConn, ok := srv.table.Get("client")
	require.True(t, ok)

	// A duplicated/delayed start datagram (spec.md §1 allows duplication)
	// must not reopen the sink or reset progress already made.
	ack := send(wire.TypeStart, 0, []byte("hello.txt"))
	// The stale start fails acceptance and is acked by the ordinary formula:
	// expectedOffset(13) - len("hello.txt")(9).
	assert.Equal(t, uint32(4), ack.Seqno, "a stale start is acked through the ordinary reassembler formula")

	secondConn, ok := srv.table.Get("client")
	require.True(t, ok)
	assert.Same(t, firstConn, secondConn, "duplicate start must reuse the existing connection, not replace it")

	endSeqno := dataSeqno + uint32(len("body"))
	send(wire.TypeEnd, endSeqno, nil)

	sink := sinks["client/hello.txt"]
	require.NotNil(t, sink)
	assert.Equal(t, "body", sink.String(), "duplicate start must not truncate the in-progress output")
	assert.Len(t, sinks, 1, "duplicate start must not open a second sink")
}

func TestServerDropsDataFromUnknownPeer(t *testing.T) {
	senderT, receiverT := transport.NewMemoryPipe("stranger", "server")
	opener, sinks := openMemSink()
	srv := NewServer(receiverT, opener, WithIdleTimeout(200*time.Millisecond))

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.Run(stop) }()
	t.Cleanup(func() { close(stop); <-done })

	frame := wire.Encode(wire.TypeData, 0, []byte("x"))
	require.NoError(t, senderT.Send(frame, nil))

	_, err := senderT.Receive(100 * time.Millisecond)
	assert.ErrorIs(t, err, transport.ErrTimeout, "no connection exists yet, so no ack should come back")
	assert.Empty(t, sinks)
}

func TestServerIdleSweepEvictsStaleConnection(t *testing.T) {
	senderT, receiverT := transport.NewMemoryPipe("client", "server")
	opener, _ := openMemSink()
	srv := NewServer(receiverT, opener, WithIdleTimeout(100*time.Millisecond))

	frame := wire.Encode(wire.TypeStart, 0, []byte("f.txt"))
	require.NoError(t, senderT.Send(frame, nil))

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.Run(stop) }()

	_, err := senderT.Receive(time.Second)
	require.NoError(t, err) // the start ack

	require.Eventually(t, func() bool {
		return srv.table.Len() == 0
	}, time.Second, 10*time.Millisecond, "connection should be evicted after idling past its timeout")

	close(stop)
	<-done
}
