package dump

import "sync/atomic"

// Metrics is a snapshot of cumulative manager counters.
type Metrics struct {
	Registered       int64
	Bumped           int64
	BumpMisses       int64
	RemovedTmp       int64
	RemovedOutdated  int64
	RemovedExpired   int64
	RemovedExcessive int64
	RemoveErrors     int64
	ListErrors       int64
}

type managerCounters struct {
	registered       atomic.Int64
	bumped           atomic.Int64
	bumpMisses       atomic.Int64
	removedTmp       atomic.Int64
	removedOutdated  atomic.Int64
	removedExpired   atomic.Int64
	removedExcessive atomic.Int64
	removeErrors     atomic.Int64
	listErrors       atomic.Int64
}

func (c *managerCounters) snapshot() Metrics {
	return Metrics{
		Registered:       c.registered.Load(),
		Bumped:           c.bumped.Load(),
		BumpMisses:       c.bumpMisses.Load(),
		RemovedTmp:       c.removedTmp.Load(),
		RemovedOutdated:  c.removedOutdated.Load(),
		RemovedExpired:   c.removedExpired.Load(),
		RemovedExcessive: c.removedExcessive.Load(),
		RemoveErrors:     c.removeErrors.Load(),
		ListErrors:       c.listErrors.Load(),
	}
}

func newManagerCounters() *managerCounters {
	return &managerCounters{}
}
