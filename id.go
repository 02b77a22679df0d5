package signalr

import (
	"strconv"
	"sync/atomic"
)

// idSource produces invocation ids. The default implementation,
// idGenerator, is monotonic; tests substitute a fake to force collisions
// (spec scenario 6, "Duplicate id guard").
type idSource interface {
	next() string
}

// idGenerator produces a monotonic, process-local sequence of invocation
// ids, rendered as decimal strings. The zero value is ready to use.
type idGenerator struct {
	seq int64
}

// next returns the next invocation id. Ids produced within a session are
// pairwise distinct and strictly increasing when interpreted as integers.
func (g *idGenerator) next() string {
	n := atomic.AddInt64(&g.seq, 1)
	return strconv.FormatInt(n, 10)
}
