package mempool

import (
	"sort"
	"time"
)

// MempoolExpiry is how long an entry may sit unconfirmed before it becomes
// an eviction candidate purely on age, regardless of fee rate.
const MempoolExpiry = 336 * time.Hour

// evict enforces p.maxBytes: first anything older than MempoolExpiry, then
// (if still over) the lowest fee-rate entries, until the pool fits. Must be
// called with p.mu held. Returns the evicted entries so the caller can bump
// the rolling minimum fee off the highest fee rate among them.
func (p *Pool) evict(now time.Time) []*Entry {
	if p.size <= p.maxBytes {
		return nil
	}

	entries := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}

	// removeLocked cascade-evicts descendants of whatever it removes, so an
	// entry from these snapshots may already be gone by the time its turn
	// comes up; skip it rather than re-removing (a no-op) or double-
	// counting it in evicted.
	var evicted []*Entry
	for _, e := range entries {
		if p.size <= p.maxBytes {
			break
		}
		if _, stillPooled := p.entries[e.Hash]; !stillPooled {
			continue
		}
		if now.Sub(e.Ps) > MempoolExpiry {
			evicted = append(evicted, p.removeLocked(e.Hash)...)
		}
	}

	if p.size <= p.maxBytes {
		return evicted
	}

	remaining := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		remaining = append(remaining, e)
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].Rate < remaining[j].Rate })

	for _, e := range remaining {
		if p.size <= p.maxBytes {
			break
		}
		if _, stillPooled := p.entries[e.Hash]; !stillPooled {
			continue
		}
		evicted = append(evicted, p.removeLocked(e.Hash)...)
	}
	return evicted
}

// sortByRateDesc orders entries by fee rate, highest first.
func sortByRateDesc(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Rate > entries[j].Rate })
}
