// Package tcb implements the Transmission Control Block: the per-connection
// sequence-space state and the modulo-2^32 arithmetic the state machine
// reasons about.
package tcb

import "fmt"

// Seq is a 32-bit TCP sequence number. All arithmetic on Seq wraps the way
// RFC 793 sequence space does; comparisons use the signed-difference
// convention from RFC 1323 (a < b iff (int32)(a-b) < 0) rather than raw
// unsigned comparison.
type Seq uint32

// Add returns seq+n with implicit modulo-2^32 wraparound.
func (seq Seq) Add(n uint32) Seq {
	return Seq(uint32(seq) + n)
}

// Sub returns seq-n with implicit modulo-2^32 wraparound.
func (seq Seq) Sub(n uint32) Seq {
	return Seq(uint32(seq) - n)
}

// Diff returns seq-other as a signed 32-bit distance in sequence space.
func (seq Seq) Diff(other Seq) int32 {
	return int32(uint32(seq) - uint32(other))
}

// Greater reports whether a comes strictly after b in sequence space.
func Greater(a, b Seq) bool {
	return a.Diff(b) > 0
}

// GreaterOrEqual reports whether a comes at or after b in sequence space.
func GreaterOrEqual(a, b Seq) bool {
	return a == b || Greater(a, b)
}

// Less reports whether a comes strictly before b in sequence space.
func Less(a, b Seq) bool {
	return !GreaterOrEqual(a, b)
}

// LessOrEqual reports whether a comes at or before b in sequence space.
func LessOrEqual(a, b Seq) bool {
	return !Greater(a, b)
}

// InWindow reports whether seq lies in [lo, lo+size) in sequence space,
// i.e. RCV.NXT <= seq < RCV.NXT+RCV.WND using wraparound-safe comparison.
func InWindow(seq, lo Seq, size uint32) bool {
	if size == 0 {
		return false
	}
	return GreaterOrEqual(seq, lo) && Less(seq, lo.Add(size))
}

func (seq Seq) String() string {
	return fmt.Sprintf("%d", uint32(seq))
}
