// Package target implements the pool's difficulty/target codec (spec component C1).
//
// The authoritative difficulty representation is a float64. Targets are 256-bit
// unsigned integers, stored as little-endian byte arrays on the wire (Stratum
// convention) and as big-endian internally where Bitcoin-style nbits decode needs it.
package target

import (
	"encoding/hex"
	"math"
	"math/big"
	"strings"
)

// Size is the width of a Stratum target in bytes.
const Size = 32

// diff1TargetHex is the big-endian "difficulty 1" target: the coefficient 0x00ffff
// shifted left by 26 bytes (nbits 0x1d00ffff decoded), matching the value every
// Bitcoin-derived difficulty-1 pool target traces back to.
const diff1TargetHex = "00000000ffff" + "0000000000000000000000000000000000000000000000000000"

var (
	diff1Target = mustParseHexBig(diff1TargetHex)
	maxTarget   = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustParseHexBig(h string) *big.Int {
	b, err := hex.DecodeString(h)
	if err != nil {
		panic(err)
	}
	return new(big.Int).SetBytes(b)
}

// TargetFromDiff produces a little-endian 256-bit target for the given pool
// difficulty. diff == 0 (or negative/NaN) yields the maximum target (all 0xFF);
// very high diff values that would otherwise underflow to zero are clamped to 1.
func TargetFromDiff(diff float64) [Size]byte {
	if diff == 0 || math.IsNaN(diff) || diff < 0 {
		return allFF()
	}
	if math.IsInf(diff, 1) {
		return bigToLE(big.NewInt(1)) // the quotient would round to 0; clamp to the smallest nonzero target
	}

	bf := new(big.Float).SetPrec(256).SetInt(diff1Target)
	df := new(big.Float).SetPrec(256).SetFloat64(diff)
	quotient := new(big.Float).SetPrec(256).Quo(bf, df)

	ti, _ := quotient.Int(nil)
	return bigToLE(clampTarget(ti))
}

// DiffFromTarget computes the pool difficulty represented by a little-endian target.
func DiffFromTarget(targetLE [Size]byte) float64 {
	return diffFromBig(leToBig(targetLE))
}

// DiffFromBetarget computes the pool difficulty represented by a big-endian target.
func DiffFromBetarget(targetBE [Size]byte) float64 {
	return diffFromBig(new(big.Int).SetBytes(targetBE[:]))
}

func diffFromBig(t *big.Int) float64 {
	if t == nil || t.Sign() <= 0 {
		return 0
	}
	bf := new(big.Float).SetPrec(256).SetInt(diff1Target)
	tf := new(big.Float).SetPrec(256).SetInt(t)
	q := new(big.Float).SetPrec(256).Quo(bf, tf)
	f, _ := q.Float64()
	return f
}

// DiffFromNBits decodes a Bitcoin compact-difficulty nbits value (as it appears on
// the wire, 4 bytes: [exponent, mantissa_hi, mantissa_mid, mantissa_lo]) and returns
// the equivalent pool difficulty. Invalid encodings return 0 rather than panicking.
func DiffFromNBits(nbits [4]byte) float64 {
	exponent := int(nbits[0])
	mantissa := uint32(nbits[1])<<16 | uint32(nbits[2])<<8 | uint32(nbits[3])
	if mantissa&0x00800000 != 0 {
		// negative-flagged compact values have no meaningful target
		return 0
	}

	m := new(big.Int).SetUint64(uint64(mantissa))
	var t *big.Int
	switch {
	case exponent <= 3:
		shift := uint(8 * (3 - exponent))
		t = new(big.Int).Rsh(m, shift)
	default:
		shift := uint(8 * (exponent - 3))
		t = new(big.Int).Lsh(m, shift)
	}

	t = clampTarget(t)
	return diffFromBig(t)
}

// NormalizePoolDiff is the identity for d < 1.0, and rounds to the nearest whole
// number (half away from zero) for d >= 1.0. Infinities and NaN pass through
// unchanged rather than corrupting state.
func NormalizePoolDiff(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return d
	}
	if d < 1.0 {
		return d
	}
	return math.Round(d)
}

func clampTarget(t *big.Int) *big.Int {
	if t.Sign() <= 0 {
		return big.NewInt(1)
	}
	if t.Cmp(maxTarget) > 0 {
		return new(big.Int).Set(maxTarget)
	}
	return t
}

func allFF() [Size]byte {
	var out [Size]byte
	for i := range out {
		out[i] = 0xFF
	}
	return out
}

func bigToLE(v *big.Int) [Size]byte {
	be := v.Bytes()
	var out [Size]byte
	// right-align the big-endian bytes, then reverse into little-endian.
	offset := Size - len(be)
	if offset < 0 {
		be = be[-offset:]
		offset = 0
	}
	for i, b := range be {
		out[Size-1-(offset+i)] = b
	}
	return out
}

func leToBig(le [Size]byte) *big.Int {
	be := make([]byte, Size)
	for i, b := range le {
		be[Size-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}

// HexLE renders a little-endian target as a hex string for wire/debug use.
func HexLE(t [Size]byte) string {
	return hex.EncodeToString(t[:])
}

// MustParseLEHex parses a hex-encoded little-endian target, padding/truncating to
// Size bytes. Intended for tests and config loading, not hot-path code.
func MustParseLEHex(s string) [Size]byte {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	var out [Size]byte
	copy(out[:], b)
	return out
}
