package trading

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// permit admits at most one holder at a time without waiting.
type permit struct {
	sem      *semaphore.Weighted
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newPermit() *permit {
	return &permit{sem: semaphore.NewWeighted(1)}
}

// tryAcquire takes the permit if it is free.
func (p *permit) tryAcquire() bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	n := p.inFlight.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	return true
}

func (p *permit) release() {
	p.inFlight.Add(-1)
	p.sem.Release(1)
}

// InFlight returns the current number of holders, zero or one.
func (p *permit) InFlight() int { return int(p.inFlight.Load()) }

// Peak returns the highest number of simultaneous holders seen.
func (p *permit) Peak() int { return int(p.peak.Load()) }
