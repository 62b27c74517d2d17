package receiver

import "time"

// Table owns every active Connection, keyed by peer address identity
// (spec.md §4.6, component C5). Entries are exclusively owned by the
// table; ownership of each Connection's sink follows it until eviction.
type Table struct {
	conns map[string]*Connection
}

// NewTable builds an empty connection table.
func NewTable() *Table {
	return &Table{conns: make(map[string]*Connection)}
}

// Get looks up the connection for peer, if any.
func (t *Table) Get(peer string) (*Connection, bool) {
	c, ok := t.conns[peer]
	return c, ok
}

// Put registers a newly created connection, replacing any prior entry for
// the same peer. Server.dispatchStart only calls this for a peer with no
// existing connection; a duplicate `start` for an in-progress transfer
// reuses that connection instead of calling Put again.
func (t *Table) Put(c *Connection) {
	t.conns[c.Peer] = c
}

// Len reports the number of tracked connections.
func (t *Table) Len() int { return len(t.conns) }

// Sweep closes and removes every connection idle longer than timeout
// (spec.md §4.6 step 5 / §3 Connection lifecycle). It returns the peers
// evicted, for logging and metrics.
func (t *Table) Sweep(timeout time.Duration) []string {
	now := time.Now()
	var evicted []string
	for peer, conn := range t.conns {
		if now.Sub(conn.LastActivity()) > timeout {
			_ = conn.Close()
			delete(t.conns, peer)
			evicted = append(evicted, peer)
		}
	}
	return evicted
}

// CloseAll closes every tracked connection, for process shutdown.
func (t *Table) CloseAll() {
	for peer, conn := range t.conns {
		_ = conn.Close()
		delete(t.conns, peer)
	}
}
