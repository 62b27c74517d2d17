package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablePutGet(t *testing.T) {
	tbl := NewTable()
	conn := NewConnection("id1", "peer1", 0, &memSink{})
	tbl.Put(conn)

	got, ok := tbl.Get("peer1")
	require.True(t, ok)
	assert.Same(t, conn, got)
	assert.Equal(t, 1, tbl.Len())

	_, ok = tbl.Get("nobody")
	assert.False(t, ok)
}

func TestTableSweepEvictsOnlyIdleConnections(t *testing.T) {
	tbl := NewTable()

	fresh := NewConnection("fresh", "peerA", 0, &memSink{})
	stale := NewConnection("stale", "peerB", 0, &memSink{})
	stale.lastActivity = time.Now().Add(-time.Hour)

	tbl.Put(fresh)
	tbl.Put(stale)

	evicted := tbl.Sweep(time.Minute)
	assert.Equal(t, []string{"peerB"}, evicted)
	assert.Equal(t, 1, tbl.Len())

	_, ok := tbl.Get("peerA")
	assert.True(t, ok)
	_, ok = tbl.Get("peerB")
	assert.False(t, ok)
}

func TestTableCloseAllClosesEverySink(t *testing.T) {
	tbl := NewTable()
	sinkA := &memSink{}
	sinkB := &memSink{}
	tbl.Put(NewConnection("a", "peerA", 0, sinkA))
	tbl.Put(NewConnection("b", "peerB", 0, sinkB))

	tbl.CloseAll()
	assert.True(t, sinkA.closed)
	assert.True(t, sinkB.closed)
	assert.Equal(t, 0, tbl.Len())
}
