package value

import (
	"testing"
)

func TestTablePutGetRemove(t *testing.T) {
	intern := NewInternSet()
	tab := NewTable()

	a := intern.InternString("a")
	b := intern.InternString("b")

	tab.Put(a, Int(1))
	tab.Put(b, Int(2))

	if got, ok := tab.Get(a); !ok || got.I != 1 {
		t.Fatalf("Get(a) = %v, %v", got, ok)
	}
	if tab.Size() != 2 {
		t.Fatalf("expected size 2, got %d", tab.Size())
	}

	removed, ok := tab.Remove(a)
	if !ok || removed.I != 1 {
		t.Fatalf("Remove(a) = %v, %v", removed, ok)
	}
	if tab.Size() != 1 {
		t.Fatalf("expected size 1 after remove, got %d", tab.Size())
	}
	if _, ok := tab.Get(a); ok {
		t.Fatalf("a should be absent after removal")
	}
}

func TestTablePutRemoveRoundTrip(t *testing.T) {
	// spec.md §8: table_put(t,k, table_remove(t,k)) after a prior put is
	// a no-op observable state-wise (sizes equal, membership equal).
	intern := NewInternSet()
	tab := NewTable()
	k := intern.InternString("k")
	tab.Put(k, Int(5))

	sizeBefore := tab.Size()
	removed, ok := tab.Remove(k)
	if !ok {
		t.Fatalf("expected key to be present")
	}
	tab.Put(k, removed)

	if tab.Size() != sizeBefore {
		t.Fatalf("size changed: before=%d after=%d", sizeBefore, tab.Size())
	}
	if got, ok := tab.Get(k); !ok || got.I != 5 {
		t.Fatalf("Get(k) after round trip = %v, %v", got, ok)
	}
}

func TestTableKeysSortedAndResize(t *testing.T) {
	intern := NewInternSet()
	tab := NewTable()

	names := []string{"zeta", "alpha", "mu", "beta", "omega", "delta", "eta", "gamma", "iota", "kappa"}
	for i, n := range names {
		tab.Put(intern.InternString(n), Int(int64(i)))
	}

	keys := tab.Keys()
	if len(keys) != len(names) {
		t.Fatalf("expected %d keys, got %d", len(names), len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}

	// every inserted key must still resolve correctly after the table
	// grew past its load factor and rehashed.
	for i, n := range names {
		v, ok := tab.Get(intern.InternString(n))
		if !ok || v.I != int64(i) {
			t.Fatalf("lookup for %q failed after resize: %v, %v", n, v, ok)
		}
	}
}

func TestTableOverwritePutDereferencesOldValue(t *testing.T) {
	intern := NewInternSet()
	tab := NewTable()
	k := intern.InternString("k")

	arr1 := NewArray()
	v1 := Value{Kind: KindArray, Arr: arr1}
	tab.Put(k, v1)
	if arr1.Count != 1 {
		t.Fatalf("expected count 1 after first put, got %d", arr1.Count)
	}

	arr2 := NewArray()
	v2 := Value{Kind: KindArray, Arr: arr2}
	tab.Put(k, v2)
	if arr1.Count != 0 {
		t.Fatalf("expected displaced value's count to drop to 0, got %d", arr1.Count)
	}
	if arr2.Count != 1 {
		t.Fatalf("expected new value's count to be 1, got %d", arr2.Count)
	}
}
