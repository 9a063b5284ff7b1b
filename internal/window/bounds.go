// Package window implements the index arithmetic behind the preload window:
// bounds placement for the re-anchor and incremental policies, and an ordered
// registry that maps each index of a contiguous range to a live handle.
//
// This package is INTERNAL - clients use the public API in the parent package.
// Everything here is pure bookkeeping: no locking, no I/O, no logging.
package window

// Bounds is a half-open range [Start, End) of sequence indices.
type Bounds struct {
	Start int
	End   int
}

// Len returns the number of indices covered by the range.
func (b Bounds) Len() int {
	if b.End < b.Start {
		return 0
	}
	return b.End - b.Start
}

// Empty reports whether the range covers no index.
func (b Bounds) Empty() bool {
	return b.Len() == 0
}

// Contains reports whether index lies inside [Start, End).
func (b Bounds) Contains(index int) bool {
	return index >= b.Start && index < b.End
}

// ClampTo restricts the range to a sequence of length n.
func (b Bounds) ClampTo(n int) Bounds {
	end := Clamp(b.End, 0, n)
	start := Clamp(b.Start, 0, end)
	return Bounds{Start: start, End: end}
}

// Clamp restricts v to the closed interval [lo, hi].
// When hi < lo the result is lo.
func Clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// Anchor computes re-anchor bounds around pivot for a sequence of length n.
//
//	start = clamp(pivot - backward, 0, n-1)
//	end   = clamp(pivot + forward + 1, 0, n)
//
// The pivot itself is first clamped to [0, n-1], so the result always contains
// it. An empty sequence yields an empty range.
func Anchor(pivot, n, backward, forward int) Bounds {
	if n <= 0 {
		return Bounds{}
	}
	pivot = Clamp(pivot, 0, n-1)
	return Bounds{
		Start: Clamp(pivot-backward, 0, n-1),
		End:   Clamp(pivot+forward+1, 0, n),
	}
}

// Step computes incremental-shift bounds for a fixed-capacity window.
//
// Starting from cur, the window is moved one index at a time:
//   - forward: while the pivot is past the forward threshold (start+backward),
//     or fewer than forward items are live ahead of it, and the sequence has
//     more items, end advances; when the size exceeds capacity the oldest
//     index (start) is dropped.
//   - backward: while the pivot is before the threshold, start retreats and
//     end is dropped past capacity.
//
// Capacity beyond the two margins therefore sits ahead of the pivot.
// capacity must be greater than backward+forward; under that precondition the
// result always contains the pivot. An empty cur seeds the window at the pivot.
func Step(cur Bounds, pivot, n, backward, forward, capacity int) Bounds {
	if n <= 0 {
		return Bounds{}
	}
	pivot = Clamp(pivot, 0, n-1)

	b := cur.ClampTo(n)
	if b.Empty() {
		b = Bounds{Start: pivot, End: pivot + 1}
	}

	for b.End < n && (pivot > b.Start+backward || b.End-1-pivot < forward) {
		b.End++
		if b.Len() > capacity {
			b.Start++
		}
	}
	for b.Start > 0 && pivot < b.Start+backward {
		b.Start--
		if b.Len() > capacity {
			b.End--
		}
	}

	return b
}

// Extend grows the tail of cur towards capacity without touching its head.
// Used after appends so that an unsaturated window fills up.
func Extend(cur Bounds, n, capacity int) Bounds {
	b := cur.ClampTo(n)
	for b.End < n && b.Len() < capacity {
		b.End++
	}
	return b
}
