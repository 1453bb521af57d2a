package correlate

import (
	"strconv"
	"sync"
)

// tokenCounter allocates per-source, monotonically increasing message
// tokens of the form "<sourceId>_<n>" (spec §3). The starting value
// follows the wire-compatibility convention noted in spec §9: 0 when
// the manager has an associated user, 1 otherwise. Implementations are
// told to preserve it for interop even though its motivation is
// unclear, so this package does too, unconditionally.
type tokenCounter struct {
	mu       sync.Mutex
	sourceID string
	next     uint64
}

func newTokenCounter(sourceID string, hasAssociatedUser bool) *tokenCounter {
	start := uint64(1)
	if hasAssociatedUser {
		start = 0
	}
	return &tokenCounter{sourceID: sourceID, next: start}
}

func (c *tokenCounter) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.next
	c.next++
	return c.sourceID + "_" + strconv.FormatUint(n, 10)
}
