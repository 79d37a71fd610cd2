package cafe

import (
	"sync/atomic"
)

// counters tracks dispatch decisions. All fields are updated atomically so
// a CacheFS can be served from several goroutines.
type counters struct {
	attrHits    atomic.Uint64
	attrMisses  atomic.Uint64
	openHits    atomic.Uint64
	openMisses  atomic.Uint64
	openBypass  atomic.Uint64
	passthrough atomic.Uint64
}

// Stats returns a snapshot of the dispatch counters
func (c *CacheFS) Stats() Stats {
	return Stats{
		AttrHits:    c.stats.attrHits.Load(),
		AttrMisses:  c.stats.attrMisses.Load(),
		OpenHits:    c.stats.openHits.Load(),
		OpenMisses:  c.stats.openMisses.Load(),
		OpenBypass:  c.stats.openBypass.Load(),
		Passthrough: c.stats.passthrough.Load(),
	}
}

// Stats contains dispatch statistics
type Stats struct {
	// AttrHits counts attribute lookups answered by the cache
	AttrHits uint64
	// AttrMisses counts attribute lookups that fell back to the delegate
	AttrMisses uint64
	// OpenHits counts read-only opens served from the cache
	OpenHits uint64
	// OpenMisses counts read-only opens that fell back to the delegate
	OpenMisses uint64
	// OpenBypass counts opens that went straight to the delegate because
	// they were not read-only
	OpenBypass uint64
	// Passthrough counts every other forwarded operation
	Passthrough uint64
}

// HitRatio returns the fraction of cacheable requests answered by the
// cache, or 0 when there were none.
func (s Stats) HitRatio() float64 {
	hits := s.AttrHits + s.OpenHits
	total := hits + s.AttrMisses + s.OpenMisses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
