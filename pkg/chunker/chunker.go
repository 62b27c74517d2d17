// Package chunker presents a payload file as the ordered sequence of
// byte-offset-tagged chunks the sender's sliding window consumes
// (spec.md §4.3, component C3).
package chunker

import (
	"io"

	"github.com/ComedyRotten/bears-tp/pkg/wire"
)

// Chunk is one unit handed to the sender's window: a byte offset and the
// bytes starting there. An empty Data with Final set is the end marker.
type Chunk struct {
	Seqno uint32
	Data  []byte
	Final bool
}

// Source is the byte source abstraction spec.md §1 calls out as an external
// collaborator: something a Chunker can Seek to the start of and Read from.
type Source interface {
	io.ReadSeeker
}

// Chunker emits a lazy, finite, restartable sequence of Chunks: first the
// basename as the `start` payload, then up to CHUNK-sized data chunks in
// file order, then a single empty `end` chunk. Restart means reseek to zero,
// which Reset does.
type Chunker struct {
	src      Source
	basename string
	initial  uint32

	next     uint32
	started  bool
	finished bool
}

// New builds a Chunker over src, whose first emitted chunk carries basename
// as its payload and initial as its seqno.
func New(src Source, basename string, initial uint32) *Chunker {
	return &Chunker{src: src, basename: basename, initial: initial}
}

// Reset reseeks the underlying source to zero and restarts the sequence
// from the initial start chunk.
func (c *Chunker) Reset() error {
	if _, err := c.src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	c.next = c.initial
	c.started = false
	c.finished = false
	return nil
}

// Done reports whether the end chunk has already been emitted.
func (c *Chunker) Done() bool {
	return c.finished
}

// Next returns the next chunk in the sequence, or io.EOF once the end
// marker has been produced. The first call always yields the `start`
// chunk; the reader must then be positioned at offset 0 of the payload.
func (c *Chunker) Next() (Chunk, error) {
	if c.finished {
		return Chunk{}, io.EOF
	}

	if !c.started {
		c.started = true
		basename := []byte(c.basename)
		chunk := Chunk{Seqno: c.next, Data: basename}
		c.next += uint32(len(basename))
		return chunk, nil
	}

	buf := make([]byte, wire.MaxPayload)
	n, err := io.ReadFull(c.src, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Chunk{}, err
	}

	if n == 0 {
		c.finished = true
		return Chunk{Seqno: c.next, Data: nil, Final: true}, nil
	}

	chunk := Chunk{Seqno: c.next, Data: buf[:n]}
	c.next += uint32(n)
	return chunk, nil
}
