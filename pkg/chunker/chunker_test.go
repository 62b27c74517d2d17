package chunker

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ComedyRotten/bears-tp/pkg/wire"
)

func drain(t *testing.T, c *Chunker) []Chunk {
	t.Helper()
	var chunks []Chunk
	for {
		chunk, err := c.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
		if chunk.Final {
			break
		}
	}
	return chunks
}

func TestChunkerEmitsStartThenDataThenEnd(t *testing.T) {
	src := bytes.NewReader([]byte("hello world"))
	c := New(src, "greeting.txt", 0)

	chunks := drain(t, c)
	require.Len(t, chunks, 3)

	assert.Equal(t, uint32(0), chunks[0].Seqno)
	assert.Equal(t, []byte("greeting.txt"), chunks[0].Data)
	assert.False(t, chunks[0].Final)

	assert.Equal(t, uint32(len("greeting.txt")), chunks[1].Seqno)
	assert.Equal(t, []byte("hello world"), chunks[1].Data)
	assert.False(t, chunks[1].Final)

	assert.True(t, chunks[2].Final)
	assert.Empty(t, chunks[2].Data)
	assert.True(t, c.Done())
}

func TestChunkerSplitsOversizedPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{'a'}, wire.MaxPayload*2+10)
	src := bytes.NewReader(payload)
	c := New(src, "big.bin", 0)

	chunks := drain(t, c)
	// start + 3 data chunks (two full, one partial) + end
	require.Len(t, chunks, 5)

	var reassembled []byte
	for _, chunk := range chunks[1 : len(chunks)-1] {
		reassembled = append(reassembled, chunk.Data...)
	}
	assert.Equal(t, payload, reassembled)

	for _, chunk := range chunks[1 : len(chunks)-2] {
		assert.Len(t, chunk.Data, wire.MaxPayload)
	}
}

func TestChunkerSeqnosAreContiguousByteOffsets(t *testing.T) {
	src := bytes.NewReader([]byte("abcdef"))
	c := New(src, "f", 1000)

	chunks := drain(t, c)
	require.Len(t, chunks, 3)

	assert.Equal(t, uint32(1000), chunks[0].Seqno)
	assert.Equal(t, uint32(1001), chunks[1].Seqno) // 1000 + len("f")
	assert.Equal(t, uint32(1007), chunks[2].Seqno) // 1001 + len("abcdef")
}

func TestChunkerResetReplaysFromStart(t *testing.T) {
	src := bytes.NewReader([]byte("abc"))
	c := New(src, "f", 0)

	first := drain(t, c)

	require.NoError(t, c.Reset())
	second := drain(t, c)

	assert.Equal(t, first, second)
}

func TestChunkerEmptySourceStillEmitsEndChunk(t *testing.T) {
	src := bytes.NewReader(nil)
	c := New(src, "empty.txt", 0)

	chunks := drain(t, c)
	require.Len(t, chunks, 2)
	assert.True(t, chunks[1].Final)
}
