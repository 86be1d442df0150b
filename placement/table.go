package placement

import (
	"sort"
	"sync"
)

// Table holds the external artifacts recorded during one build, keyed by
// source path. It is safe for concurrent use; writes to the same key are
// last-writer-wins.
type Table struct {
	mu      sync.Mutex
	pending map[string]*Artifact
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{pending: make(map[string]*Artifact)}
}

// Put records the artifact for its source path.
func (t *Table) Put(a *Artifact) {
	t.mu.Lock()
	t.pending[a.Source] = a
	t.mu.Unlock()
}

// Get returns the artifact recorded for source.
func (t *Table) Get(source string) (*Artifact, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.pending[source]
	return a, ok
}

// Len returns the number of recorded artifacts.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Drain returns every recorded artifact ordered by source path and empties
// the table.
func (t *Table) Drain() []*Artifact {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[string]*Artifact)
	t.mu.Unlock()

	out := make([]*Artifact, 0, len(pending))
	for _, a := range pending {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
