package window

// Entry pairs a sequence index with the handle registered for it.
type Entry[H any] struct {
	Index  int
	Handle H
}

// Registry is an ordered, contiguous mapping from the indices of a range to
// handles. Slot i of the registry belongs to sequence index Start()+i, so the
// registry is always exactly as large as its bounds.
//
// Registry is not safe for concurrent use; the owner serializes access.
type Registry[H any] struct {
	start   int
	handles []H
}

// NewRegistry returns an empty registry positioned at start.
func NewRegistry[H any](start int) *Registry[H] {
	return &Registry[H]{start: start}
}

// Bounds returns the range covered by the registry.
func (r *Registry[H]) Bounds() Bounds {
	return Bounds{Start: r.start, End: r.start + len(r.handles)}
}

// Len returns the number of registered handles.
func (r *Registry[H]) Len() int {
	return len(r.handles)
}

// At returns the handle for a sequence index using the window-relative
// offset. Indices outside the current bounds report false.
func (r *Registry[H]) At(index int) (H, bool) {
	offset := index - r.start
	if offset < 0 || offset >= len(r.handles) {
		var zero H
		return zero, false
	}
	return r.handles[offset], true
}

// Append registers h for the index just past the current end.
func (r *Registry[H]) Append(h H) {
	r.handles = append(r.handles, h)
}

// Handles returns a copy of the handles in index order.
func (r *Registry[H]) Handles() []H {
	out := make([]H, len(r.handles))
	copy(out, r.handles)
	return out
}

// Entries returns a copy of the registry as index/handle pairs.
func (r *Registry[H]) Entries() []Entry[H] {
	out := make([]Entry[H], len(r.handles))
	for i, h := range r.handles {
		out[i] = Entry[H]{Index: r.start + i, Handle: h}
	}
	return out
}

// Find returns the index of the first handle matching fn.
func (r *Registry[H]) Find(fn func(H) bool) (int, bool) {
	for i, h := range r.handles {
		if fn(h) {
			return r.start + i, true
		}
	}
	return -1, false
}

// ShiftForInsert applies the insertion of n items at sequence index at.
//
//   - at <= start: the whole range moves by n (no handle changes).
//   - at >= end: nothing moves.
//   - start < at < end: the insertion opens a gap inside the range. Handles
//     from at onward are split off and returned with their shifted indices so
//     that the registry stays contiguous; the caller decides whether to reuse
//     or retire them.
func (r *Registry[H]) ShiftForInsert(at, n int) []Entry[H] {
	b := r.Bounds()
	switch {
	case n <= 0 || at >= b.End:
		return nil
	case at <= b.Start:
		r.start += n
		return nil
	}

	offset := at - r.start
	tail := make([]Entry[H], 0, len(r.handles)-offset)
	for i, h := range r.handles[offset:] {
		tail = append(tail, Entry[H]{Index: at + n + i, Handle: h})
	}
	clear(r.handles[offset:])
	r.handles = r.handles[:offset]
	return tail
}

// ShiftForRemove applies the removal of the item at sequence index at. When
// that index was registered its handle is dropped and returned; later handles
// slide down by one so the registry stays contiguous.
func (r *Registry[H]) ShiftForRemove(at int) (H, bool) {
	var zero H
	b := r.Bounds()
	switch {
	case at >= b.End:
		return zero, false
	case at < b.Start:
		r.start--
		return zero, false
	}

	offset := at - r.start
	removed := r.handles[offset]
	copy(r.handles[offset:], r.handles[offset+1:])
	r.handles[len(r.handles)-1] = zero
	r.handles = r.handles[:len(r.handles)-1]
	return removed, true
}

// ClampTo keeps an empty registry positioned inside a sequence of length n.
func (r *Registry[H]) ClampTo(n int) {
	if len(r.handles) == 0 && r.start > n {
		r.start = n
	}
	if r.start < 0 {
		r.start = 0
	}
}
