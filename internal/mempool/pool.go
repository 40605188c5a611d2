// Package mempool implements the transaction admission pipeline: a
// fail-fast sequence of structural, standardness, and UTXO-aware checks
// that gates what a node is willing to hold and relay ahead of block
// inclusion, plus the eviction, orphan, and conflict-resolution machinery
// that keeps the pool bounded once a transaction is in.
package mempool

import (
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-chain/internal/coin"
	"github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// DefaultMaxBytes bounds total signing-byte usage across the pool.
const DefaultMaxBytes = 300_000_000 // 300 MB, matching a full node's default mempool ceiling.

// AbsurdFeeMultiple rejects a transaction paying more than this multiple
// of the minimum relay fee outright, on the theory that it's more likely a
// user error than a legitimate high-priority spend.
const AbsurdFeeMultiple = 10_000

var poolLog = log.Mempool

// Pool holds unconfirmed transactions. A single RWMutex serializes every
// mutating call the way §5 requires of the mempool's logical worker;
// read-only queries take the read lock and may run concurrently with each
// other, never with a write.
type Pool struct {
	mu sync.RWMutex

	entries map[types.Hash]*Entry
	spends  map[types.Outpoint]types.Hash
	orphans *orphanPool

	size    int // running total of Entry.Size across the pool.
	maxBytes int

	chain    ChainSource
	policy   *Policy
	fees     *feeState
	minRelay float64 // base units per byte floor beneath the rolling minimum.

	deploymentTip   uint32 // height policy.CSVActive/SegwitActive were last recomputed at.
	deploymentReady bool

	notifier Notifier
	feeSink  FeeSink
}

// New creates a mempool backed by chain for coin resolution and contextual
// checks. maxBytes <= 0 selects DefaultMaxBytes.
func New(chainSrc ChainSource, maxBytes int, opts ...Option) *Pool {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	p := &Pool{
		entries:  make(map[types.Hash]*Entry),
		spends:   make(map[types.Outpoint]types.Hash),
		orphans:  newOrphanPool(),
		maxBytes: maxBytes,
		chain:    chainSrc,
		policy:   DefaultPolicy(),
		fees:     newFeeState(time.Now()),
		notifier: NopNotifier{},
		feeSink:  NopFeeSink{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Option configures a Pool at construction time.
type Option func(*Pool)

func WithPolicy(policy *Policy) Option    { return func(p *Pool) { p.policy = policy } }
func WithNotifier(n Notifier) Option      { return func(p *Pool) { p.notifier = n } }
func WithFeeSink(s FeeSink) Option        { return func(p *Pool) { p.feeSink = s } }
func WithMinRelayFeeRate(r float64) Option { return func(p *Pool) { p.minRelay = r } }

// refreshDeployments recomputes policy.CSVActive/SegwitActive from the
// chain's BIP9 state on tip change, so standardness gating tracks actual
// deployment height instead of the policy's construction-time zero value.
func (p *Pool) refreshDeployments(tip uint32) error {
	if p.deploymentReady && p.deploymentTip == tip {
		return nil
	}
	csv, err := p.chain.DeploymentActive("csv")
	if err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	segwit, err := p.chain.DeploymentActive("segwit")
	if err != nil {
		return fmt.Errorf("segwit: %w", err)
	}
	p.policy.CSVActive = csv
	p.policy.SegwitActive = segwit
	p.deploymentTip = tip
	p.deploymentReady = true
	return nil
}

// buildView layers every currently-pooled transaction's outputs, at
// coin.UnconfirmedHeight, over the chain's confirmed UTXO set — so a new
// transaction spending an unconfirmed parent resolves without a special
// case, matching §4.6 step 6 ("fill coins from mempool then from chain").
func (p *Pool) buildView() *coin.View {
	view := coin.NewView(p.chain)
	for _, e := range p.entries {
		view.AddTx(e.Tx, coin.UnconfirmedHeight)
	}
	for outpoint := range p.spends {
		view.Spend(outpoint)
	}
	return view
}

// Add runs t through the admission pipeline. On success it returns the
// entry's fee; a rejection returns a *ValidationError classifying why,
// except for orphan parking and pool-full back-pressure, which return
// their own sentinels.
func (p *Pool) Add(t *tx.Transaction) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addLocked(t, time.Now())
}

func (p *Pool) addLocked(t *tx.Transaction, now time.Time) (uint64, error) {
	hash := t.Hash()
	p.notifier.OnTx(t)

	// Step 1: already known.
	if _, exists := p.entries[hash]; exists {
		return 0, reject(KindAlreadyKnown, 0, fmt.Errorf("already in mempool"))
	}

	// Step 2: structural sanity.
	if err := t.ValidateStructure(); err != nil {
		return 0, reject(KindInvalid, 100, err)
	}
	if err := p.policy.CheckStructure(t); err != nil {
		return 0, reject(KindInvalid, 10, err)
	}

	// Step 3: not a coinbase.
	if t.IsCoinbase() {
		return 0, reject(KindCoinbase, 100, fmt.Errorf("coinbase transactions are not relayed"))
	}

	tip, err := p.chain.Tip()
	if err != nil {
		return 0, fmt.Errorf("mempool: read chain tip: %w", err)
	}
	mtp, err := p.chain.MedianTime()
	if err != nil {
		return 0, fmt.Errorf("mempool: read median time: %w", err)
	}
	height := tip.Height + 1

	// Step 4: standardness gate.
	if p.policy.RequireStandard {
		if !isFinal(t, height, mtp) {
			return 0, reject(KindNonFinal, 0, fmt.Errorf("locktime not yet final"))
		}
		if err := p.refreshDeployments(tip.Height); err != nil {
			return 0, fmt.Errorf("mempool: refresh deployment state: %w", err)
		}
		if err := p.policy.CheckStandard(t); err != nil {
			return 0, reject(KindNonStandard, 0, err)
		}
	}

	// Step 5: double-spend against existing mempool spenders.
	for _, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		if conflictHash, exists := p.spends[in.PrevOut]; exists && conflictHash != hash {
			if replaced := p.tryReplace(t, hash, now); replaced {
				break
			}
			return 0, reject(KindDuplicate, 0, fmt.Errorf("input %s already spent by %s", in.PrevOut, conflictHash))
		}
	}

	// Step 6: fill coins from mempool, then chain; park as orphan on failure.
	view := p.buildView()
	if !view.FillCoins(t) {
		missing := missingInputs(t, view.Has)
		if len(missing) == 0 {
			return 0, reject(KindInvalid, 10, fmt.Errorf("unresolved input with no identifiable parent"))
		}
		p.orphans.add(t, missing)
		return 0, ErrOrphan
	}

	// Step 7: verify. Try the standard (relay-policy) flag set first; a
	// transaction that only fails the extra standard-only checks is
	// nonstandard, not invalid, and isn't scored against the peer that
	// relayed it. Only a failure under the mandatory flag set — the
	// consensus baseline a block would enforce regardless — is ban-worthy.
	if err := checkSequenceLocks(t, height, view); err != nil {
		return 0, err
	}
	fee, err := t.ValidateWithUTXOsFlags(view, tx.StandardVerifyFlags)
	if err != nil {
		if _, mandErr := t.ValidateWithUTXOsFlags(view, tx.MandatoryVerifyFlags); mandErr == nil {
			return 0, reject(KindNonMandatoryScript, 0, err)
		}
		return 0, reject(KindMandatoryScript, 100, err)
	}

	size := len(t.SigningBytes())
	priority, chainValue, dependencies := computePriority(t, view, height, size)

	minRelayFee := uint64(p.minRelay * float64(size))
	p.fees.decay(now, p.size, p.maxBytes)
	rejectFee := p.fees.minFee(size)
	if minRelayFee > rejectFee {
		rejectFee = minRelayFee
	}
	if fee < rejectFee {
		if !p.fees.allowFree(now, size) {
			return 0, reject(KindInsufficientFee, 0, fmt.Errorf("fee %d below required %d and free-relay budget exhausted", fee, rejectFee))
		}
	}

	// Priority gate: distinct from the free-relay rolling budget above —
	// a transaction that pays under the raw minimum relay fee is only
	// admitted here if its coin-age priority itself clears the threshold,
	// independent of how much free-relay budget remains.
	if p.policy.RelayPriority && fee < minRelayFee && priority <= FreeThreshold {
		return 0, reject(KindInsufficientFee, 0, fmt.Errorf("priority %.2f at or below free threshold %.2f and fee %d below min relay %d", priority, FreeThreshold, fee, minRelayFee))
	}

	if p.minRelay > 0 && fee > uint64(p.minRelay*float64(size))*AbsurdFeeMultiple {
		return 0, reject(KindHighFee, 0, fmt.Errorf("fee %d is absurdly high", fee))
	}

	if p.policy.AncestorLimit > 0 {
		if n := p.ancestorCount(t); n > p.policy.AncestorLimit {
			return 0, reject(KindNonStandard, 0, fmt.Errorf("ancestor chain length %d exceeds limit %d", n, p.policy.AncestorLimit))
		}
	}

	// Step 8: insert.
	e := newEntry(t, fee, height, now, priority, chainValue, dependencies)
	p.entries[hash] = e
	for _, in := range t.Inputs {
		if !in.PrevOut.IsZero() {
			p.spends[in.PrevOut] = hash
		}
	}
	p.size += e.Size
	p.propagateToAncestors(t, e.Size, e.Fee)
	p.notifier.OnAddTx(t)
	p.feeSink.ObserveTx(e.Rate, e.Size)

	// Step 9: eviction.
	if evicted := p.evict(now); len(evicted) > 0 {
		maxRate := evicted[0].Rate
		for _, ev := range evicted {
			if ev.Rate > maxRate {
				maxRate = ev.Rate
			}
			poolLog.Debug().Str("tx", ev.Hash.String()).Msg("mempool entry evicted")
		}
		p.fees.bump(maxRate + p.minRelay)
		if _, stillPooled := p.entries[hash]; !stillPooled {
			return 0, ErrPoolFull
		}
	}

	// Step 10: orphan resolution.
	for _, orphan := range p.orphans.ready(hash) {
		if _, err := p.addLocked(orphan, now); err != nil {
			poolLog.Debug().Str("tx", orphan.Hash().String()).Err(err).Msg("orphan re-entry failed")
			p.notifier.OnBadOrphan(orphan)
		}
	}

	return fee, nil
}

// computePriority returns the classic value*age/size priority score used
// by the priority gate, the entry's resolved input value total, and
// whether any input spends a still-unconfirmed mempool parent (a
// coin.UnconfirmedHeight coin contributes zero age, on the theory that a
// transaction can't outrank the parent it depends on).
func computePriority(t *tx.Transaction, view *coin.View, height uint32, size int) (priority float64, chainValue uint64, dependencies bool) {
	var weighted float64
	for _, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		c, ok := view.Get(in.PrevOut)
		if !ok {
			continue
		}
		chainValue += c.Value
		if c.Height == coin.UnconfirmedHeight {
			dependencies = true
			continue
		}
		age := height - c.Height
		weighted += float64(c.Value) * float64(age)
	}
	if size > 0 {
		priority = weighted / float64(size)
	}
	return priority, chainValue, dependencies
}

// propagateToAncestors folds a newly admitted entry's size and fee into
// every already-pooled ancestor's package aggregates (Count/Sizes/Fees),
// walking the same parent-child edges ancestorCount uses to bound chain
// length.
func (p *Pool) propagateToAncestors(t *tx.Transaction, size int, fee uint64) {
	seen := make(map[types.Hash]bool)
	var walk func(*tx.Transaction)
	walk = func(cur *tx.Transaction) {
		for _, in := range cur.Inputs {
			parentHash := in.PrevOut.TxID
			if seen[parentHash] {
				continue
			}
			if parent, ok := p.entries[parentHash]; ok {
				seen[parentHash] = true
				parent.Count++
				parent.Sizes += size
				parent.Fees += fee
				walk(parent.Tx)
			}
		}
	}
	walk(t)
}

// unpropagateFromAncestors reverses propagateToAncestors when an entry
// leaves the pool, whether by direct removal, replacement, or eviction.
func (p *Pool) unpropagateFromAncestors(t *tx.Transaction, size int, fee uint64) {
	seen := make(map[types.Hash]bool)
	var walk func(*tx.Transaction)
	walk = func(cur *tx.Transaction) {
		for _, in := range cur.Inputs {
			parentHash := in.PrevOut.TxID
			if seen[parentHash] {
				continue
			}
			if parent, ok := p.entries[parentHash]; ok {
				seen[parentHash] = true
				parent.Count--
				parent.Sizes -= size
				parent.Fees -= fee
				walk(parent.Tx)
			}
		}
	}
	walk(t)
}

// ancestorCount reports how many currently-pooled transactions t directly
// or transitively spends from.
func (p *Pool) ancestorCount(t *tx.Transaction) int {
	seen := make(map[types.Hash]bool)
	var walk func(*tx.Transaction)
	walk = func(cur *tx.Transaction) {
		for _, in := range cur.Inputs {
			parentHash := in.PrevOut.TxID
			if seen[parentHash] {
				continue
			}
			if parent, ok := p.entries[parentHash]; ok {
				seen[parentHash] = true
				walk(parent.Tx)
			}
		}
	}
	walk(t)
	return len(seen)
}

// tryReplace implements §4.6's conflict-resolution rule: the newer
// transaction displaces an existing unconfirmed spender of the same
// input(s) iff it was received later, per receive-time ("ps") ordering
// rather than a higher-fee requirement. Every transitively-removed
// spender fires OnConflict. Returns whether a replacement happened.
func (p *Pool) tryReplace(t *tx.Transaction, hash types.Hash, now time.Time) bool {
	conflicts := make(map[types.Hash]bool)
	for _, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		if conflictHash, exists := p.spends[in.PrevOut]; exists {
			conflicts[conflictHash] = true
		}
	}
	if len(conflicts) == 0 {
		return false
	}
	for conflictHash := range conflicts {
		existing, ok := p.entries[conflictHash]
		if !ok || !now.After(existing.Ps) {
			return false
		}
	}
	for conflictHash := range conflicts {
		if _, ok := p.entries[conflictHash]; ok {
			for _, removed := range p.removeLocked(conflictHash) {
				p.notifier.OnConflict(removed.Tx)
			}
		}
	}
	return true
}

// Remove drops a transaction by hash without any confirmation semantics.
// Any pooled child spending one of its outputs is cascade-removed too.
func (p *Pool) Remove(hash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.removeLocked(hash) {
		p.notifier.OnRemoveTx(e.Tx)
	}
}

// removeLocked removes hash and every pooled descendant that spends one of
// its outputs, since once hash is gone a descendant's input resolves
// nowhere — not in the pool, not on chain. Returns hash's entry followed
// by every cascaded descendant, in removal order. A no-op (nil) if hash
// isn't currently pooled, so callers may safely re-invoke it on an entry
// already removed by an earlier cascade in the same pass.
func (p *Pool) removeLocked(hash types.Hash) []*Entry {
	e, exists := p.entries[hash]
	if !exists {
		return nil
	}
	delete(p.entries, hash)
	p.size -= e.Size
	for _, in := range e.Tx.Inputs {
		if !in.PrevOut.IsZero() {
			delete(p.spends, in.PrevOut)
		}
	}
	p.unpropagateFromAncestors(e.Tx, e.Size, e.Fee)

	removed := []*Entry{e}
	for i := range e.Tx.Outputs {
		op := types.Outpoint{TxID: hash, Index: uint32(i)}
		if childHash, ok := p.spends[op]; ok {
			removed = append(removed, p.removeLocked(childHash)...)
		}
	}
	return removed
}

// AddBlock is the confirmation path (§4.6): every non-coinbase transaction
// the block just confirmed is removed from the pool together with its
// spend-index entries, without cascade-removing pooled descendants (the
// chain now holds the outputs they spend), and any orphan waiting on one of
// the block's transactions is purged since it can never be admitted the
// normal way again.
func (p *Pool) AddBlock(height uint32, transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var confirmed []*Entry
	for _, t := range transactions {
		if t.IsCoinbase() {
			continue
		}
		hash := t.Hash()
		if e, ok := p.entries[hash]; ok {
			delete(p.entries, hash)
			p.size -= e.Size
			for _, in := range e.Tx.Inputs {
				if !in.PrevOut.IsZero() {
					delete(p.spends, in.PrevOut)
				}
			}
			p.unpropagateFromAncestors(e.Tx, e.Size, e.Fee)
			confirmed = append(confirmed, e)
			p.notifier.OnConfirmed(t, height)
		}
		// Any orphan waiting on this now-confirmed txid can never be
		// admitted normally again as a mempool child of it; drop it.
		p.orphans.ready(hash)
	}
	p.feeSink.ObserveBlock(height, confirmed)
}

// RemoveBlock is the re-org path (§4.6): every non-coinbase transaction of
// a disconnected block is reinserted directly as a mempool entry at the
// block's own height, bypassing the fee gates the network already
// accepted this transaction under once.
func (p *Pool) RemoveBlock(height uint32, transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for _, t := range transactions {
		if t.IsCoinbase() {
			continue
		}
		hash := t.Hash()
		if _, exists := p.entries[hash]; exists {
			continue
		}
		view := p.buildView()
		fee, err := t.ValidateWithUTXOs(view)
		if err != nil {
			continue
		}
		size := len(t.SigningBytes())
		priority, chainValue, dependencies := computePriority(t, view, height, size)
		e := newEntry(t, fee, height, now, priority, chainValue, dependencies)
		p.entries[hash] = e
		p.propagateToAncestors(t, e.Size, e.Fee)
		for _, in := range t.Inputs {
			if !in.PrevOut.IsZero() {
				p.spends[in.PrevOut] = hash
			}
		}
		p.size += e.Size
		p.notifier.OnUnconfirmed(t, height)
	}
}

// Has reports whether a transaction hash is currently pooled.
func (p *Pool) Has(hash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[hash]
	return ok
}

// Get retrieves a pooled transaction by hash, or nil.
func (p *Pool) Get(hash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.entries[hash]; ok {
		return e.Tx
	}
	return nil
}

// Count returns the number of transactions currently pooled.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// OrphanCount returns the number of transactions parked awaiting a parent.
func (p *Pool) OrphanCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.orphans.count()
}

// SelectForBlock returns up to limit pooled transactions ordered by fee
// rate, highest first, for a block template.
func (p *Pool) SelectForBlock(limit int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	sortByRateDesc(entries)

	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]*tx.Transaction, limit)
	for i := 0; i < limit; i++ {
		out[i] = entries[i].Tx
	}
	return out
}
