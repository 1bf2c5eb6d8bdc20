package collab

import (
	"sync"
	"sync/atomic"
)

// MemoryCounter implements Counter as in-process atomic gauges. The
// gateway is single-node (spec §13: no clustering or session
// migration), so a shared external counter store would have no
// observer to read it from outside this process; sync/atomic is the
// whole job.
type MemoryCounter struct {
	values sync.Map
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

func (c *MemoryCounter) Incr(name string) {
	c.counter(name).Add(1)
}

func (c *MemoryCounter) Decr(name string) {
	c.counter(name).Add(-1)
}

func (c *MemoryCounter) Value(name string) int64 {
	return c.counter(name).Load()
}

func (c *MemoryCounter) counter(name string) *atomic.Int64 {
	v, _ := c.values.LoadOrStore(name, &atomic.Int64{})
	return v.(*atomic.Int64)
}
