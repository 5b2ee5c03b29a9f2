// Package value implements Hymn's tagged-union Value type and the
// reference-counted heap objects (string, array, table, function) it can
// hold.
//
// A Value is a small struct, not an interface: the Kind field selects
// which payload field is live. This mirrors the source's C union while
// staying memory-safe in Go — no unsafe pointer casts are needed.
//
// Heap objects share a header (Obj) with a live reference count. Value
// itself never decides when to destroy an Obj; callers are responsible
// for calling Reference/Dereference according to the discipline in
// spec.md §4.4: push/pop never change refcount, consuming an operand
// means popping then dereferencing, producing a heap result means
// referencing before or at push.
package value

import "fmt"

// Kind discriminates the variant a Value holds.
type Kind int

const (
	KindUndefined Kind = iota
	KindNone
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindTable
	KindFunc
	KindNativeFunc
	KindPointer
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "Undefined"
	case KindNone:
		return "None"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Integer"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindArray:
		return "Array"
	case KindTable:
		return "Table"
	case KindFunc:
		return "Function"
	case KindNativeFunc:
		return "NativeFunction"
	case KindPointer:
		return "Pointer"
	default:
		return "Unknown"
	}
}

// Obj is the common header embedded by every heap-allocated object.
// Count is the number of live references to this object, summed across
// stack slots, table entries, array entries, global-table entries and
// constant-pool entries (spec.md §3 invariant).
type Obj struct {
	Count int
}

// Value is Hymn's tagged union. Exactly one of the payload fields is
// meaningful, selected by Kind:
//
//	KindBool            -> B
//	KindInt             -> I
//	KindFloat            -> F
//	KindString          -> Str
//	KindArray           -> Arr
//	KindTable           -> Tab
//	KindFunc            -> Fn
//	KindNativeFunc      -> Native
//	KindPointer         -> Ptr
type Value struct {
	Kind   Kind
	B      bool
	I      int64
	F      float64
	Str    *Str
	Arr    *Array
	Tab    *Table
	Fn     *Func
	Native *NativeFunc
	Ptr    any
}

// Undefined is the internal "absent" sentinel. It must never reach user
// code; the compiler and VM use it to mark unset constant-pool slots and
// missing table entries.
var Undefined = Value{Kind: KindUndefined}

// None is Hymn's user-visible null value.
var None = Value{Kind: KindNone}

// Bool constructs a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, B: b} }

// Int constructs an integer Value.
func Int(i int64) Value { return Value{Kind: KindInt, I: i} }

// Float constructs a float Value.
func Float(f float64) Value { return Value{Kind: KindFloat, F: f} }

// IsHeap reports whether v holds a reference-counted heap object.
func (v Value) IsHeap() bool {
	switch v.Kind {
	case KindString, KindArray, KindTable, KindFunc:
		return true
	default:
		return false
	}
}

// obj returns the heap header backing v, or nil if v isn't a heap value.
func (v Value) obj() *Obj {
	switch v.Kind {
	case KindString:
		return &v.Str.Obj
	case KindArray:
		return &v.Arr.Obj
	case KindTable:
		return &v.Tab.Obj
	case KindFunc:
		return &v.Fn.Obj
	default:
		return nil
	}
}

// Reference increments v's refcount if v is a heap value. Call this
// whenever a new owner (stack slot, table entry, array slot, global,
// constant pool entry) starts pointing at v.
func Reference(v Value) {
	if o := v.obj(); o != nil {
		o.Count++
	}
}

// Dereference decrements v's refcount if v is a heap value, destroying
// the object when the count reaches zero. Destruction recursively
// dereferences contained values for arrays and tables; cycles are not
// detected or collected (spec.md §3, §9 — a documented limitation
// inherited from the source).
func Dereference(v Value) {
	o := v.obj()
	if o == nil {
		return
	}
	o.Count--
	if o.Count > 0 {
		return
	}
	switch v.Kind {
	case KindArray:
		for _, item := range v.Arr.Items {
			Dereference(item)
		}
	case KindTable:
		v.Tab.release()
	case KindFunc:
		for _, c := range v.Fn.Code.Constants {
			Dereference(c)
		}
	}
}

// Truthy implements Hymn's truthiness rule (spec.md §4.3): none, false,
// 0, 0.0, empty string, empty array, empty table, and a nil function or
// native pointer are falsy; everything else is truthy.
func Truthy(v Value) bool {
	switch v.Kind {
	case KindUndefined, KindNone:
		return false
	case KindBool:
		return v.B
	case KindInt:
		return v.I != 0
	case KindFloat:
		return v.F != 0
	case KindString:
		return v.Str != nil && len(v.Str.Bytes) != 0
	case KindArray:
		return v.Arr != nil && len(v.Arr.Items) != 0
	case KindTable:
		return v.Tab != nil && v.Tab.Size() != 0
	case KindFunc:
		return v.Fn != nil
	case KindNativeFunc:
		return v.Native != nil
	case KindPointer:
		return v.Ptr != nil
	default:
		return false
	}
}

// Equal implements Hymn's equality rule (spec.md §4.3, §8): structural
// for primitives, pointer-equal for heap objects, and numerically
// cross-type (an int equals the float of the same value).
func Equal(a, b Value) bool {
	if isNumeric(a) && isNumeric(b) {
		return numericValue(a) == numericValue(b)
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindUndefined, KindNone:
		return true
	case KindBool:
		return a.B == b.B
	case KindString:
		return a.Str == b.Str
	case KindArray:
		return a.Arr == b.Arr
	case KindTable:
		return a.Tab == b.Tab
	case KindFunc:
		return a.Fn == b.Fn
	case KindNativeFunc:
		return a.Native == b.Native
	case KindPointer:
		return a.Ptr == b.Ptr
	default:
		return false
	}
}

func isNumeric(v Value) bool { return v.Kind == KindInt || v.Kind == KindFloat }

func numericValue(v Value) float64 {
	if v.Kind == KindInt {
		return float64(v.I)
	}
	return v.F
}

// ToDisplayString renders v the way `print` and string concatenation
// do. It never mutates refcounts; callers intern and reference the
// result themselves if they need to keep it.
func ToDisplayString(v Value) string {
	switch v.Kind {
	case KindUndefined:
		return "undefined"
	case KindNone:
		return "none"
	case KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindFloat:
		return formatFloat(v.F)
	case KindString:
		return string(v.Str.Bytes)
	case KindArray:
		return formatArray(v.Arr)
	case KindTable:
		return formatTable(v.Tab)
	case KindFunc:
		if v.Fn.Name != nil {
			return "<function: " + *v.Fn.Name + ">"
		}
		return "<function>"
	case KindNativeFunc:
		return "<native function>"
	case KindPointer:
		return fmt.Sprintf("<pointer: %p>", v.Ptr)
	default:
		return ""
	}
}

func formatFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	for _, c := range s {
		if !(c == '-' || (c >= '0' && c <= '9')) {
			return s // already has a '.', exponent, or is NaN/Inf
		}
	}
	return s + ".0"
}

func formatArray(a *Array) string {
	out := "["
	for i, item := range a.Items {
		if i > 0 {
			out += ", "
		}
		if item.Kind == KindString {
			out += "\"" + string(item.Str.Bytes) + "\""
		} else {
			out += ToDisplayString(item)
		}
	}
	return out + "]"
}

func formatTable(t *Table) string {
	out := "{"
	keys := t.Keys()
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		v, _ := t.GetByBytes([]byte(k))
		out += k + ": "
		if v.Kind == KindString {
			out += "\"" + string(v.Str.Bytes) + "\""
		} else {
			out += ToDisplayString(v)
		}
	}
	return out + "}"
}
