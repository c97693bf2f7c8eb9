package selector

import "sync/atomic"

// Cell caches the selection of one indirect dispatch site.
//
// A Cell holds either "unresolved" or the index of the selected
// implementation, in a single atomic word: readers never see a torn value.
// Racing resolvers compute the same index on a given machine, so publishing
// is a plain atomic store and needs no compare-and-swap.
//
// The zero Cell is unresolved and ready to use. A Cell must not be copied
// after first use, and must not be shared between sites.
type Cell struct {
	v atomic.Uint32 // 0 = unresolved, otherwise index+1
}

// Load returns the published index, or false while unresolved.
func (c *Cell) Load() (int, bool) {
	v := c.v.Load()
	if v == 0 {
		return 0, false
	}
	return int(v - 1), true
}

// Store publishes index.
func (c *Cell) Store(index int) {
	c.v.Store(uint32(index) + 1)
}

// Resolved reports whether an index has been published.
func (c *Cell) Resolved() bool {
	return c.v.Load() != 0
}
