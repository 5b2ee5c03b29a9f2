package value

import "testing"

func TestArrayInsertRemoveRoundTrip(t *testing.T) {
	// spec.md §8: insert(a,i,v); remove(a,i) restores a, for 0<=i<=length(a).
	a := NewArrayFrom([]Value{Int(1), Int(2), Int(3)})
	before := append([]Value(nil), a.Items...)

	if ok := a.Insert(1, Int(99)); !ok {
		t.Fatalf("insert failed")
	}
	if got, ok := a.RemoveAt(1); !ok || got.I != 99 {
		t.Fatalf("RemoveAt(1) = %v, %v", got, ok)
	}

	if len(a.Items) != len(before) {
		t.Fatalf("length mismatch after round trip: got %d want %d", len(a.Items), len(before))
	}
	for i := range before {
		if !Equal(a.Items[i], before[i]) {
			t.Fatalf("item %d mismatch: got %v want %v", i, a.Items[i], before[i])
		}
	}
}

func TestArrayNegativeIndex(t *testing.T) {
	a := NewArrayFrom([]Value{Int(10), Int(20), Int(30)})
	idx, ok := a.Resolve(-1)
	if !ok || idx != 2 {
		t.Fatalf("Resolve(-1) = %d, %v", idx, ok)
	}
	idx, ok = a.Resolve(-3)
	if !ok || idx != 0 {
		t.Fatalf("Resolve(-3) = %d, %v", idx, ok)
	}
	if _, ok = a.Resolve(-4); ok {
		t.Fatalf("Resolve(-4) should be out of bounds")
	}
	if _, ok = a.Resolve(3); ok {
		t.Fatalf("Resolve(3) should be out of bounds")
	}
}

func TestArraySliceStartGreaterEqualEndFails(t *testing.T) {
	a := NewArrayFrom([]Value{Int(1), Int(2), Int(3)})
	if _, ok := a.Slice(2, 1); ok {
		t.Fatalf("slice with start >= end should fail")
	}
	if _, ok := a.Slice(1, 1); ok {
		t.Fatalf("slice with start == end should fail")
	}
	sliced, ok := a.Slice(0, 2)
	if !ok || len(sliced.Items) != 2 {
		t.Fatalf("slice(0,2) failed: %v, %v", sliced, ok)
	}
}

func TestArrayCopyIsIndependent(t *testing.T) {
	a := NewArrayFrom([]Value{Int(1), Int(2)})
	b := a.Copy()
	if a == b {
		t.Fatalf("copy must be pointer-distinct")
	}
	if !Equal(a.Items[0], b.Items[0]) {
		t.Fatalf("copy must be value-equal initially")
	}
	b.Items[0] = Int(99)
	if a.Items[0].I == 99 {
		t.Fatalf("mutating the copy must not affect the original")
	}
}

func TestArrayPushPopTransfersOwnership(t *testing.T) {
	inner := NewArray()
	iv := Value{Kind: KindArray, Arr: inner}

	outer := NewArray()
	outer.Push(iv)
	if inner.Count != 1 {
		t.Fatalf("push should reference the value, got count %d", inner.Count)
	}

	popped, ok := outer.Pop()
	if !ok {
		t.Fatalf("pop failed")
	}
	if inner.Count != 1 {
		t.Fatalf("pop should not change refcount, got %d", inner.Count)
	}
	Dereference(popped)
	if inner.Count != 0 {
		t.Fatalf("expected count 0 after caller drops the popped value, got %d", inner.Count)
	}
}
