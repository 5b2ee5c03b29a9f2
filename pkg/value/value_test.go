package value

import "testing"

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{None, false},
		{Bool(false), false},
		{Bool(true), true},
		{Int(0), false},
		{Int(1), true},
		{Float(0), false},
		{Float(0.1), true},
	}
	for _, c := range cases {
		if got := Truthy(c.v); got != c.want {
			t.Errorf("Truthy(%v) = %v, want %v", c.v, got, c.want)
		}
	}

	intern := NewInternSet()
	empty := StringValue(intern.InternString(""))
	if Truthy(empty) {
		t.Errorf("empty string should be falsy")
	}
	full := StringValue(intern.InternString("x"))
	if !Truthy(full) {
		t.Errorf("non-empty string should be truthy")
	}

	emptyArr := Value{Kind: KindArray, Arr: NewArray()}
	if Truthy(emptyArr) {
		t.Errorf("empty array should be falsy")
	}

	emptyTab := Value{Kind: KindTable, Tab: NewTable()}
	if Truthy(emptyTab) {
		t.Errorf("empty table should be falsy")
	}
}

func TestEqualCrossNumeric(t *testing.T) {
	if !Equal(Int(3), Float(3.0)) {
		t.Errorf("3 should equal 3.0")
	}
	if Equal(Int(3), Float(3.5)) {
		t.Errorf("3 should not equal 3.5")
	}
}

func TestEqualStringPointerIdentity(t *testing.T) {
	intern := NewInternSet()
	a := StringValue(intern.InternString("hello"))
	b := StringValue(intern.InternString("hello"))
	if a.Str != b.Str {
		t.Fatalf("interning the same bytes twice must return the same pointer")
	}
	if !Equal(a, b) {
		t.Errorf("interned strings with equal bytes must compare equal")
	}
}

func TestInternSetPointerEquality(t *testing.T) {
	intern := NewInternSet()
	s1 := intern.Intern([]byte("abc"))
	s2 := intern.Intern([]byte("abc"))
	s3 := intern.Intern([]byte("abd"))
	if s1 != s2 {
		t.Errorf("byte-equal strings must intern to the same pointer")
	}
	if s1 == s3 {
		t.Errorf("byte-different strings must not intern to the same pointer")
	}
}

func TestRefcountDiscipline(t *testing.T) {
	arr := NewArray()
	v := Value{Kind: KindArray, Arr: arr}
	Reference(v)
	if arr.Count != 1 {
		t.Fatalf("expected count 1, got %d", arr.Count)
	}
	Reference(v)
	if arr.Count != 2 {
		t.Fatalf("expected count 2, got %d", arr.Count)
	}
	Dereference(v)
	if arr.Count != 1 {
		t.Fatalf("expected count 1 after one dereference, got %d", arr.Count)
	}
}

func TestFormatFloat(t *testing.T) {
	cases := map[float64]string{
		13:   "13.0",
		0:    "0.0",
		-4:   "-4.0",
		3.14: "3.14",
	}
	for f, want := range cases {
		if got := formatFloat(f); got != want {
			t.Errorf("formatFloat(%v) = %q, want %q", f, got, want)
		}
	}
}

func TestToDisplayString(t *testing.T) {
	if ToDisplayString(None) != "none" {
		t.Errorf("none display mismatch")
	}
	if ToDisplayString(Bool(true)) != "true" {
		t.Errorf("true display mismatch")
	}
	if ToDisplayString(Int(42)) != "42" {
		t.Errorf("int display mismatch")
	}
}
