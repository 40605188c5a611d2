package mempool

import (
	"math"
	"time"
)

// FeeHalflife is the time constant the rolling minimum relay fee decays
// with once the pool has room to spare again.
const FeeHalflife = 12 * time.Hour

// FreeRelayDecayPeriod is how often the free-transaction budget replenishes.
const FreeRelayDecayPeriod = 10 * time.Minute

// limitFreeRelayBytes caps the free-transaction budget: 15 KB/minute, i.e.
// 15*10*1000 bytes over the 10-minute (600 s) decay window, matching the
// historical Bitcoin Core -limitfreerelay=15 default.
const limitFreeRelayBytes = 15 * 10 * 1000

// feeState tracks the rolling minimum relay fee rate and the free-relay
// rate limiter, both of which decay over time rather than resetting at a
// fixed interval.
type feeState struct {
	rollingMinRate float64 // base units per byte.
	lastUpdate     time.Time

	freeBudget   float64 // bytes of remaining free-relay budget.
	lastFreeTime time.Time
}

func newFeeState(now time.Time) *feeState {
	return &feeState{lastUpdate: now, freeBudget: limitFreeRelayBytes, lastFreeTime: now}
}

// decay halves rollingMinRate every FeeHalflife elapsed, additionally
// halved again if the pool is under half capacity and quartered under a
// quarter capacity — matching §4.6's halflife rule.
func (f *feeState) decay(now time.Time, poolBytes, maxBytes int) {
	elapsed := now.Sub(f.lastUpdate)
	if elapsed <= 0 {
		return
	}
	halvings := elapsed.Seconds() / FeeHalflife.Seconds()
	f.rollingMinRate *= math.Pow(0.5, halvings)

	if maxBytes > 0 {
		if poolBytes < maxBytes/4 {
			f.rollingMinRate /= 4
		} else if poolBytes < maxBytes/2 {
			f.rollingMinRate /= 2
		}
	}
	if f.rollingMinRate < 0 {
		f.rollingMinRate = 0
	}
	f.lastUpdate = now
}

// bump raises the rolling minimum to at least candidate, called after an
// eviction with the evicted entry's own rate plus a margin.
func (f *feeState) bump(candidate float64) {
	if candidate > f.rollingMinRate {
		f.rollingMinRate = candidate
	}
}

// minFee returns the fee (not rate) required for a transaction of size
// bytes at the current rolling minimum.
func (f *feeState) minFee(size int) uint64 {
	return uint64(f.rollingMinRate * float64(size))
}

// allowFree consumes size bytes of free-relay budget, replenishing it since
// the last check as the bytes already used decay by a factor of (1 - 1/600)
// per elapsed second, and reports whether the spend fit.
func (f *feeState) allowFree(now time.Time, size int) bool {
	elapsed := now.Sub(f.lastFreeTime).Seconds()
	if elapsed > 0 {
		used := (limitFreeRelayBytes - f.freeBudget) * math.Pow(1-1.0/600, elapsed)
		f.freeBudget = limitFreeRelayBytes - used
		if f.freeBudget > limitFreeRelayBytes {
			f.freeBudget = limitFreeRelayBytes
		}
		f.lastFreeTime = now
	}
	if f.freeBudget < float64(size) {
		return false
	}
	f.freeBudget -= float64(size)
	return true
}
