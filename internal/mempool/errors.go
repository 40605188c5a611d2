package mempool

import "errors"

// Kind categorizes a rejected transaction the way a peer-facing ban-score
// policy needs to: most kinds are informational, a handful (the
// bad-txns-* and mandatory-script failures) are ban-worthy.
type Kind string

const (
	KindInvalid            Kind = "invalid"
	KindNonStandard        Kind = "nonstandard"
	KindInsufficientFee    Kind = "insufficientfee"
	KindAlreadyKnown       Kind = "alreadyknown"
	KindDuplicate          Kind = "duplicate"
	KindHighFee            Kind = "highfee"
	KindNonMandatoryScript Kind = "nonmandatory-script"
	KindMandatoryScript    Kind = "mandatory-script"
	KindNonBIP68Final      Kind = "non-BIP68-final"
	KindNonFinal           Kind = "non-final"
	KindCoinbase           Kind = "coinbase"
)

// ValidationError carries the categorized rejection reason and ban score a
// peer layer needs; Unwrap exposes the underlying cause for %w matching.
type ValidationError struct {
	Kind  Kind
	Score int
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func reject(kind Kind, score int, err error) *ValidationError {
	return &ValidationError{Kind: kind, Score: score, Err: err}
}

// Back-pressure signals, not validation failures — never scored against a peer.
var (
	ErrPoolFull       = errors.New("mempool is full")
	ErrOrphanPoolFull = errors.New("orphan pool is full")
	ErrOrphan         = errors.New("transaction parked pending an unresolved input")
)
