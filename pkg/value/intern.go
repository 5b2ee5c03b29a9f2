package value

// Str is an interned byte string. Two Strs with equal bytes are always
// the same *Str pointer once both have passed through an InternSet —
// this is what lets Value equality and table-key lookup use pointer
// comparison instead of byte comparison (spec.md §3, §8 invariant 1).
type Str struct {
	Obj
	Bytes []byte
	Hash  uint64
}

// hashBytes computes the same hash the original C implementation uses:
// a Java-style polynomial hash (hash = 31*hash + byte) subsequently
// mixed with a single xor-shift (hash ^ hash>>16). Matching it isn't
// load-bearing for correctness, but it keeps the bin-splitting rehash
// in table.go behaviorally identical to the source's.
func hashBytes(b []byte) uint64 {
	var hash uint64
	for _, c := range b {
		hash = 31*hash + uint64(c)
	}
	return hash ^ (hash >> 16)
}

// InternSet canonicalizes byte sequences to unique *Str objects. All
// compiler constants, table keys, and runtime string operations pass
// through a shared InternSet (normally the one owned by the VM) so that
// pointer equality implies byte equality.
type InternSet struct {
	entries map[string]*Str
}

// NewInternSet creates an empty intern set.
func NewInternSet() *InternSet {
	return &InternSet{entries: make(map[string]*Str)}
}

// Intern returns the canonical *Str for b, allocating one if this is
// the first time these bytes have been seen. The returned Str has a
// fresh (zero) refcount; the caller is responsible for Reference-ing it
// into whatever slot will hold it.
func (s *InternSet) Intern(b []byte) *Str {
	key := string(b) // Go string keys here are a lookup convenience, not a second representation
	if existing, ok := s.entries[key]; ok {
		return existing
	}
	owned := make([]byte, len(b))
	copy(owned, b)
	str := &Str{Bytes: owned, Hash: hashBytes(owned)}
	s.entries[key] = str
	return str
}

// InternString is a convenience wrapper around Intern for Go strings.
func (s *InternSet) InternString(str string) *Str {
	return s.Intern([]byte(str))
}

// Forget removes str from the set once its refcount has reached zero so
// the intern set doesn't grow unboundedly over a long-running VM. It is
// safe to call even if str was never interned through this set.
func (s *InternSet) Forget(str *Str) {
	delete(s.entries, string(str.Bytes))
}

// StringValue wraps an interned Str in a Value. The caller is expected
// to Reference the result if it is being stored somewhere durable.
func StringValue(str *Str) Value {
	return Value{Kind: KindString, Str: str}
}
