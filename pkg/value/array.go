package value

// Array is a contiguous, growable sequence of Values. Capacity doubles
// on growth; Items is re-sliced in place so the backing array is reused
// whenever possible.
type Array struct {
	Obj
	Items []Value
}

// NewArray creates an empty array.
func NewArray() *Array {
	return &Array{Items: make([]Value, 0, 4)}
}

// NewArrayFrom creates an array pre-populated with items, referencing
// each one. Used by the compiler's CONSTANT opcode when cloning a fresh
// array/table literal at runtime (spec.md §3).
func NewArrayFrom(items []Value) *Array {
	a := &Array{Items: make([]Value, len(items))}
	copy(a.Items, items)
	for _, v := range a.Items {
		Reference(v)
	}
	return a
}

// Push appends val, referencing it (spec.md §4.4).
func (a *Array) Push(val Value) {
	a.Items = append(a.Items, val)
	Reference(val)
}

// Pop removes and returns the last element. The returned value's
// reference transfers to the caller — no net refcount change (spec.md
// §4.4). ok is false if the array is empty.
func (a *Array) Pop() (Value, bool) {
	n := len(a.Items)
	if n == 0 {
		return Undefined, false
	}
	v := a.Items[n-1]
	a.Items = a.Items[:n-1]
	return v, true
}

// Set overwrites the element at index i, referencing the new value and
// dereferencing the one it displaces (spec.md §4.4). ok is false if i is
// out of range.
func (a *Array) Set(i int, val Value) bool {
	if i < 0 || i >= len(a.Items) {
		return false
	}
	Dereference(a.Items[i])
	a.Items[i] = val
	Reference(val)
	return true
}

// Insert places val at index i, shifting subsequent elements right.
// ok is false if i is out of [0, len] range.
func (a *Array) Insert(i int, val Value) bool {
	if i < 0 || i > len(a.Items) {
		return false
	}
	a.Items = append(a.Items, Undefined)
	copy(a.Items[i+1:], a.Items[i:])
	a.Items[i] = val
	Reference(val)
	return true
}

// RemoveAt deletes and returns the element at index i (no net refcount
// change, per spec.md §4.4 "array pop/remove").
func (a *Array) RemoveAt(i int) (Value, bool) {
	if i < 0 || i >= len(a.Items) {
		return Undefined, false
	}
	v := a.Items[i]
	copy(a.Items[i:], a.Items[i+1:])
	a.Items = a.Items[:len(a.Items)-1]
	return v, true
}

// Resolve turns a (possibly negative) Hymn index into a slice index,
// per spec.md §4.3 "Indexing": negative indices count from the end.
func (a *Array) Resolve(i int64) (int, bool) {
	n := int64(len(a.Items))
	idx := i
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return 0, false
	}
	return int(idx), true
}

// Slice returns a new Array holding items[start:end), applying the same
// negative-index resolution as Resolve to both bounds. ok is false if
// the resolved bounds are invalid or start >= end (spec.md §7 "slice
// start ≥ end").
func (a *Array) Slice(start, end int64) (*Array, bool) {
	n := int64(len(a.Items))
	s, e := start, end
	if s < 0 {
		s += n
	}
	if e < 0 {
		e += n
	}
	if s < 0 || e > n || s >= e {
		return nil, false
	}
	return NewArrayFrom(a.Items[s:e]), true
}

// Copy returns a shallow, pointer-distinct clone of a: mutating the
// clone's own slots doesn't affect a, and vice versa (spec.md §8
// round-trip property).
func (a *Array) Copy() *Array {
	return NewArrayFrom(a.Items)
}
