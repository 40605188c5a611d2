package consensus

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
)

// PoW verification errors.
var (
	ErrInsufficientWork = errors.New("hash does not meet difficulty target")
	ErrZeroTarget       = errors.New("compact bits encode a zero or negative target")
	ErrTargetTooHigh    = errors.New("target exceeds the network's proof-of-work limit")
	ErrBadBits          = errors.New("block bits do not match expected retarget")
)

// maxUint256 is 2^256 - 1, the ceiling every compact-encoded target is
// measured against.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// CompactToTarget decodes Bitcoin-style compact "bits" notation into a full
// 256-bit target. The top byte is a base-256 exponent, the low three bytes
// are the mantissa: target = mantissa * 256^(exponent-3).
func CompactToTarget(bits uint32) *big.Int {
	exponent := bits >> 24
	mantissa := int64(bits & 0x007FFFFF)
	if bits&0x00800000 != 0 {
		// Sign bit set; Bitcoin treats this as a negative (invalid) target.
		return big.NewInt(0)
	}

	target := big.NewInt(mantissa)
	if exponent <= 3 {
		return target.Rsh(target, uint(8*(3-exponent)))
	}
	return target.Lsh(target, uint(8*(exponent-3)))
}

// TargetToCompact encodes a 256-bit target into compact "bits" notation,
// the inverse of CompactToTarget.
func TargetToCompact(target *big.Int) uint32 {
	if target.Sign() <= 0 {
		return 0
	}
	bytesRepr := target.Bytes()
	exponent := uint32(len(bytesRepr))

	var mantissa uint32
	switch {
	case exponent <= 3:
		mantissa = uint32(new(big.Int).Lsh(target, uint(8*(3-exponent))).Uint64())
	default:
		mantissa = uint32(new(big.Int).Rsh(target, uint(8*(exponent-3))).Uint64())
	}

	// If the mantissa's high bit is set it would read as a sign bit; shift
	// right by a byte and bump the exponent to keep the value unsigned.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}
	return exponent<<24 | mantissa
}

// PowLimit is the loosest allowed target: any bits value encoding an easier
// (numerically higher) target is rejected outright regardless of what the
// retarget formula would compute. Networks set their own via
// config.NetworkParams.PowLimitBits; this default is generous enough
// for tests that don't care about a specific network's genesis difficulty.
var PowLimit = CompactToTarget(0x1e00ffff)

// VerifyHeader checks that a header's hash meets its own stated bits and
// that those bits do not exceed powLimit. It does not check that bits is
// the *expected* value for this position in the chain — that is a
// chain-context check performed by ExpectedBits/VerifyRetarget, which needs
// ancestor timestamps this function does not have.
func VerifyHeader(h *block.Header, powLimit *big.Int) error {
	target := CompactToTarget(h.Bits)
	if target.Sign() <= 0 {
		return ErrZeroTarget
	}
	if target.Cmp(powLimit) > 0 {
		return ErrTargetTooHigh
	}

	hash := crypto.Hash(h.SigningBytes())
	hashInt := new(big.Int).SetBytes(reverse(hash[:]))
	if hashInt.Cmp(target) > 0 {
		return ErrInsufficientWork
	}
	return nil
}

// reverse returns a big-endian copy of a little-endian-interpreted hash so
// the numeric comparison matches the convention used when a hash is
// displayed and compared as a big number (lowest byte is least significant).
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// RetargetParams bundles the network constants a retarget calculation needs.
// A network with NoRetarget set (regtest-style) always returns PowLimit.
type RetargetParams struct {
	PowLimit         *big.Int
	TargetTimespan   int64 // seconds covered by one retarget interval
	TargetSpacing    int64 // seconds between blocks
	RetargetInterval uint32
	NoRetarget       bool
}

// ExpectedBits computes the bits value required for the block at height,
// given the previous block's bits and, only at a retarget boundary, the
// timestamps bracketing the interval just completed.
func ExpectedBits(height uint32, prevBits uint32, params RetargetParams, intervalStart, intervalEnd uint64) uint32 {
	if params.NoRetarget {
		return TargetToCompact(params.PowLimit)
	}
	if height == 0 || height%params.RetargetInterval != 0 {
		return prevBits
	}

	actualTimespan := int64(intervalEnd - intervalStart)
	return calcNextBits(prevBits, actualTimespan, params)
}

// calcNextBits clamps the actual timespan to [expected/4, expected*4] before
// scaling the previous target, mirroring the original CalcNextDifficulty
// clamp but operating on compact bits and real target arithmetic instead of
// a synthetic scalar difficulty.
func calcNextBits(prevBits uint32, actualTimespan int64, params RetargetParams) uint32 {
	expected := params.TargetTimespan
	minSpan := expected / 4
	maxSpan := expected * 4
	if actualTimespan < minSpan {
		actualTimespan = minSpan
	}
	if actualTimespan > maxSpan {
		actualTimespan = maxSpan
	}
	if actualTimespan <= 0 {
		actualTimespan = 1
	}

	prevTarget := CompactToTarget(prevBits)
	newTarget := new(big.Int).Mul(prevTarget, big.NewInt(actualTimespan))
	newTarget.Div(newTarget, big.NewInt(expected))

	if newTarget.Cmp(params.PowLimit) > 0 {
		newTarget = params.PowLimit
	}
	return TargetToCompact(newTarget)
}

// VerifyRetarget checks that a header's bits equal the value ExpectedBits
// would compute for its height.
func VerifyRetarget(h *block.Header, height uint32, prevBits uint32, params RetargetParams, intervalStart, intervalEnd uint64) error {
	expected := ExpectedBits(height, prevBits, params, intervalStart, intervalEnd)
	if h.Bits != expected {
		return fmt.Errorf("%w: height %d has bits %#x, want %#x", ErrBadBits, height, h.Bits, expected)
	}
	return nil
}
