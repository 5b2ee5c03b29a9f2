package value

import "sort"

const (
	initialBins = 1 << 3
	loadFactor  = 0.80
)

// tableEntry is one chain link in a Table bin.
type tableEntry struct {
	key   *Str
	value Value
	next  *tableEntry
}

// Table is a chained hash map from interned string keys to Values. Bins
// are a power-of-two sized slice; when size/bins reaches loadFactor the
// table doubles its bin count and rehashes in place by splitting each
// chain into "low" and "high" halves based on the bit that changed —
// matching the source's resize algorithm exactly rather than doing a
// full rehash-from-scratch, since the bit-split produces the same
// ordering guarantees the spec documents for §3.
type Table struct {
	Obj
	bins  []*tableEntry
	size  int
}

// NewTable creates an empty table with the initial bin count.
func NewTable() *Table {
	return &Table{bins: make([]*tableEntry, initialBins)}
}

// Size returns the number of key/value pairs in the table.
func (t *Table) Size() int { return t.size }

func (t *Table) binIndex(hash uint64) int {
	return int(hash) & (len(t.bins) - 1)
}

// Get looks up key, returning value.Undefined and false if absent.
func (t *Table) Get(key *Str) (Value, bool) {
	bin := t.binIndex(key.Hash)
	for e := t.bins[bin]; e != nil; e = e.next {
		if e.key == key {
			return e.value, true
		}
	}
	return Undefined, false
}

// GetByBytes looks up a table key by raw bytes without requiring the
// caller to already hold an interned Str. Used by host bindings that
// receive plain Go strings.
func (t *Table) GetByBytes(key []byte) (Value, bool) {
	hash := hashBytes(key)
	bin := int(hash) & (len(t.bins) - 1)
	for e := t.bins[bin]; e != nil; e = e.next {
		if string(e.key.Bytes) == string(key) {
			return e.value, true
		}
	}
	return Undefined, false
}

// Put inserts or overwrites key with value. Following spec.md §4.4's
// refcount discipline for table put: the key (if new) and the value are
// referenced; if the key already existed, the displaced old value is
// dereferenced.
func (t *Table) Put(key *Str, val Value) {
	bin := t.binIndex(key.Hash)
	for e := t.bins[bin]; e != nil; e = e.next {
		if e.key == key {
			Dereference(e.value)
			e.value = val
			Reference(val)
			return
		}
	}
	t.bins[bin] = &tableEntry{key: key, value: val, next: t.bins[bin]}
	Reference(StringValue(key))
	Reference(val)
	t.size++
	if float64(t.size)/float64(len(t.bins)) >= loadFactor {
		t.grow()
	}
}

// Remove deletes key, returning its value and true, or (Undefined,
// false) if key was absent. The caller receives ownership of the
// returned value's reference (the key's own reference is dropped here).
func (t *Table) Remove(key *Str) (Value, bool) {
	bin := t.binIndex(key.Hash)
	var prev *tableEntry
	for e := t.bins[bin]; e != nil; e = e.next {
		if e.key == key {
			if prev == nil {
				t.bins[bin] = e.next
			} else {
				prev.next = e.next
			}
			t.size--
			Dereference(StringValue(key))
			return e.value, true
		}
		prev = e
	}
	return Undefined, false
}

// Clear empties the table, dereferencing every key and value.
func (t *Table) Clear() {
	for i, e := range t.bins {
		for e != nil {
			Dereference(StringValue(e.key))
			Dereference(e.value)
			e = e.next
		}
		t.bins[i] = nil
	}
	t.size = 0
}

// Keys returns every key in the table, sorted lexicographically. The
// `iterate` statement's compiled code relies on this exact guarantee
// (spec.md §3, §4.2) to materialize a stable iteration order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, t.size)
	for _, e := range t.bins {
		for ; e != nil; e = e.next {
			keys = append(keys, string(e.key.Bytes))
		}
	}
	sort.Strings(keys)
	return keys
}

// Copy returns a shallow, pointer-distinct clone of t: mutating the
// clone's own entries doesn't affect t, and vice versa (spec.md §8
// round-trip property), mirroring Array.Copy.
func (t *Table) Copy() *Table {
	c := NewTable()
	for _, bin := range t.bins {
		for e := bin; e != nil; e = e.next {
			c.Put(e.key, e.value)
		}
	}
	return c
}

// grow doubles the bin count and splits each chain into low/high halves
// based on the newly-significant bit, avoiding a full rehash pass.
func (t *Table) grow() {
	oldBins := t.bins
	newSize := len(oldBins) * 2
	newBins := make([]*tableEntry, newSize)
	splitBit := len(oldBins)

	for i, head := range oldBins {
		var lowHead, lowTail, highHead, highTail *tableEntry
		for e := head; e != nil; {
			next := e.next
			e.next = nil
			if int(e.key.Hash)&splitBit == 0 {
				if lowTail == nil {
					lowHead = e
				} else {
					lowTail.next = e
				}
				lowTail = e
			} else {
				if highTail == nil {
					highHead = e
				} else {
					highTail.next = e
				}
				highTail = e
			}
			e = next
		}
		newBins[i] = lowHead
		newBins[i+splitBit] = highHead
	}
	t.bins = newBins
}

// release dereferences every key and value still in the table. Called
// when the table's own refcount reaches zero.
func (t *Table) release() {
	t.Clear()
}
