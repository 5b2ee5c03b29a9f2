package vm

import (
	"fmt"
	"strconv"

	"github.com/hymnlang/hymn/pkg/opcode"
	"github.com/hymnlang/hymn/pkg/value"
)

// objectOp dispatches every container and type-coercion opcode: table
// property access, array/table/string dynamic indexing and slicing, and
// the single-argument builtins (len, keys, copy, clear, delete, index,
// type, int, float, string, push, pop, insert). GetProperty/SetProperty
// carry a 2-byte constant-pool operand naming the property; every other
// opcode here takes no operand bytes, reading only the value stack.
func (vm *VM) objectOp(op opcode.Opcode, code *value.ByteCode, f *Frame) error {
	switch op {
	case opcode.GetProperty:
		idx := code.ReadShort(f.ip)
		f.ip += 2
		return vm.getProperty(code.Constants[idx].Str)
	case opcode.SetProperty:
		idx := code.ReadShort(f.ip)
		f.ip += 2
		return vm.setProperty(code.Constants[idx].Str)
	case opcode.GetDynamic:
		return vm.getDynamic()
	case opcode.SetDynamic:
		return vm.setDynamic()
	case opcode.Slice:
		return vm.slice()
	case opcode.Len:
		return vm.length()
	case opcode.Keys:
		return vm.keys()
	case opcode.Copy:
		return vm.copyValue()
	case opcode.Clear:
		return vm.clear()
	case opcode.Delete:
		return vm.deleteValue()
	case opcode.Index:
		return vm.indexOf()
	case opcode.Type:
		return vm.typeOf()
	case opcode.ToInteger:
		return vm.toInteger()
	case opcode.ToFloat:
		return vm.toFloat()
	case opcode.ToString:
		return vm.toString()
	case opcode.ArrayPush:
		return vm.arrayPush()
	case opcode.ArrayPop:
		return vm.arrayPop()
	case opcode.ArrayInsert:
		return vm.arrayInsert()
	default:
		return fmt.Errorf("unknown object opcode %d", op)
	}
}

// getProperty implements GET_PROPERTY: only tables have named
// properties; a missing key reads as None rather than erroring.
func (vm *VM) getProperty(name *value.Str) error {
	v := vm.pop()
	if v.Kind != value.KindTable {
		value.Dereference(v)
		return fmt.Errorf("Only tables can get properties.")
	}
	g, ok := v.Tab.Get(name)
	if !ok {
		g = value.None
	} else {
		value.Reference(g)
	}
	vm.push(g)
	value.Dereference(v)
	return nil
}

// setProperty implements SET_PROPERTY: Table.Put already references
// the new value and dereferences whatever it displaces, so the assigned
// value just relocates onto the stack as the expression's result.
func (vm *VM) setProperty(name *value.Str) error {
	p := vm.pop()
	v := vm.pop()
	if v.Kind != value.KindTable {
		value.Dereference(p)
		value.Dereference(v)
		return fmt.Errorf("Only tables can set properties.")
	}
	v.Tab.Put(name, p)
	vm.push(p)
	value.Dereference(v)
	return nil
}

// getDynamic implements GET_DYNAMIC (`a[i]`): the receiver may be a
// String (integer index, returns a one-character string), an Array
// (integer index), or a Table (string key).
func (vm *VM) getDynamic() error {
	i := vm.pop()
	v := vm.pop()
	switch v.Kind {
	case value.KindString:
		if i.Kind != value.KindInt {
			value.Dereference(i)
			value.Dereference(v)
			return fmt.Errorf("Integer required to get string character from index.")
		}
		idx, ok := resolveIndex(i.I, int64(len(v.Str.Bytes)))
		if !ok {
			value.Dereference(i)
			value.Dereference(v)
			return fmt.Errorf("String index out of bounds %d.", i.I)
		}
		c := v.Str.Bytes[idx]
		str := vm.intern.Intern([]byte{c})
		result := value.StringValue(str)
		value.Reference(result)
		vm.push(result)
		value.Dereference(v)
		return nil
	case value.KindArray:
		if i.Kind != value.KindInt {
			value.Dereference(i)
			value.Dereference(v)
			return fmt.Errorf("Integer required to get array index.")
		}
		idx, ok := v.Arr.Resolve(i.I)
		if !ok {
			value.Dereference(i)
			value.Dereference(v)
			return fmt.Errorf("Array index out of bounds %d.", i.I)
		}
		g := v.Arr.Items[idx]
		value.Reference(g)
		vm.push(g)
		value.Dereference(v)
		return nil
	case value.KindTable:
		if i.Kind != value.KindString {
			value.Dereference(i)
			value.Dereference(v)
			return fmt.Errorf("Expected String for table key, but was `%s`.", i.Kind)
		}
		g, ok := v.Tab.Get(i.Str)
		if !ok {
			g = value.None
		} else {
			value.Reference(g)
		}
		vm.push(g)
		value.Dereference(i)
		value.Dereference(v)
		return nil
	default:
		value.Dereference(i)
		value.Dereference(v)
		return fmt.Errorf("Expected `Array` or `Table`, but was `%s`.", v.Kind)
	}
}

// setDynamic implements SET_DYNAMIC (`a[i] = value`): an Array index
// equal to its length appends; a Table key always upserts.
func (vm *VM) setDynamic() error {
	s := vm.pop()
	i := vm.pop()
	v := vm.pop()
	switch v.Kind {
	case value.KindArray:
		if i.Kind != value.KindInt {
			value.Dereference(s)
			value.Dereference(i)
			value.Dereference(v)
			return fmt.Errorf("Integer required to set array index.")
		}
		n := int64(len(v.Arr.Items))
		idx := i.I
		if idx < 0 {
			idx += n
		}
		if idx < 0 || idx > n {
			value.Dereference(s)
			value.Dereference(i)
			value.Dereference(v)
			return fmt.Errorf("Array index out of bounds %d.", i.I)
		}
		if idx == n {
			v.Arr.Push(s)
		} else {
			v.Arr.Set(int(idx), s)
		}
	case value.KindTable:
		if i.Kind != value.KindString {
			value.Dereference(s)
			value.Dereference(i)
			value.Dereference(v)
			return fmt.Errorf("String required to set table property.")
		}
		v.Tab.Put(i.Str, s)
		value.Dereference(i)
	default:
		value.Dereference(s)
		value.Dereference(i)
		value.Dereference(v)
		return fmt.Errorf("Expected `Array` or `Table`, but was `%s`.", v.Kind)
	}
	vm.push(s)
	value.Dereference(v)
	return nil
}

// resolveIndex applies Hymn's negative-index convention to a fixed
// length n, rejecting i == n (used by reads, where the slot must exist,
// unlike a write which allows appending at i == n).
func resolveIndex(i, n int64) (int64, bool) {
	idx := i
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

// slice implements SLICE (`a[lo:hi]`) over a String or an Array;
// an open end (None) means "through the end".
func (vm *VM) slice() error {
	b := vm.pop()
	a := vm.pop()
	v := vm.pop()
	if a.Kind != value.KindInt {
		value.Dereference(b)
		value.Dereference(a)
		value.Dereference(v)
		return fmt.Errorf("Integer required for slice expression.")
	}
	start := a.I
	switch v.Kind {
	case value.KindString:
		size := int64(len(v.Str.Bytes))
		end, err := sliceEnd(b, size)
		if err != nil {
			value.Dereference(b)
			value.Dereference(v)
			return err
		}
		s, e := start, end
		if s < 0 {
			s += size
		}
		if e < 0 {
			e += size
		}
		if s < 0 || e > size || s >= e {
			value.Dereference(b)
			value.Dereference(v)
			return fmt.Errorf("Invalid slice bounds %d:%d.", start, end)
		}
		str := vm.intern.InternString(string(v.Str.Bytes[s:e]))
		result := value.StringValue(str)
		value.Reference(result)
		vm.push(result)
		value.Dereference(v)
		return nil
	case value.KindArray:
		size := int64(len(v.Arr.Items))
		end, err := sliceEnd(b, size)
		if err != nil {
			value.Dereference(b)
			value.Dereference(v)
			return err
		}
		sub, ok := v.Arr.Slice(start, end)
		if !ok {
			value.Dereference(v)
			return fmt.Errorf("Invalid slice bounds %d:%d.", start, end)
		}
		result := value.Value{Kind: value.KindArray, Arr: sub}
		value.Reference(result)
		vm.push(result)
		value.Dereference(v)
		return nil
	default:
		value.Dereference(b)
		value.Dereference(v)
		return fmt.Errorf("Expected `String` or `Array` for slice expression, but was `%s`.", v.Kind)
	}
}

func sliceEnd(b value.Value, size int64) (int64, error) {
	switch b.Kind {
	case value.KindInt:
		return b.I, nil
	case value.KindNone:
		return size, nil
	default:
		return 0, fmt.Errorf("Integer required for slice expression.")
	}
}

// length implements LEN over a String, Array, or Table.
func (vm *VM) length() error {
	v := vm.pop()
	switch v.Kind {
	case value.KindString:
		vm.push(value.Int(int64(len(v.Str.Bytes))))
	case value.KindArray:
		vm.push(value.Int(int64(len(v.Arr.Items))))
	case value.KindTable:
		vm.push(value.Int(int64(v.Tab.Size())))
	default:
		value.Dereference(v)
		return fmt.Errorf("Expected `String`, `Array`, or `Table` for `len` function, but was `%s`.", v.Kind)
	}
	value.Dereference(v)
	return nil
}

// keys implements KEYS: a fresh, sorted Array of a Table's keys.
func (vm *VM) keys() error {
	v := vm.pop()
	if v.Kind != value.KindTable {
		value.Dereference(v)
		return fmt.Errorf("Expected `Table` for `keys` function, but was `%s`.", v.Kind)
	}
	items := make([]value.Value, 0, v.Tab.Size())
	for _, k := range v.Tab.Keys() {
		items = append(items, value.StringValue(vm.intern.InternString(k)))
	}
	result := value.Value{Kind: value.KindArray, Arr: value.NewArrayFrom(items)}
	value.Reference(result)
	vm.push(result)
	value.Dereference(v)
	return nil
}

// copyValue implements COPY: primitives and functions pass through
// unchanged (copying them would be meaningless, or in the function
// case unsound); Array and Table get a fresh, pointer-distinct clone.
func (vm *VM) copyValue() error {
	v := vm.pop()
	switch v.Kind {
	case value.KindArray:
		result := value.Value{Kind: value.KindArray, Arr: v.Arr.Copy()}
		value.Reference(result)
		vm.push(result)
		value.Dereference(v)
	case value.KindTable:
		result := value.Value{Kind: value.KindTable, Tab: v.Tab.Copy()}
		value.Reference(result)
		vm.push(result)
		value.Dereference(v)
	default:
		vm.push(v)
	}
	return nil
}

// clear implements CLEAR: resets a value to its zero form in place for
// Array/Table (same object, emptied), or returns a fresh zero value for
// every other kind.
func (vm *VM) clear() error {
	v := vm.pop()
	switch v.Kind {
	case value.KindBool:
		vm.push(value.Bool(false))
	case value.KindInt:
		vm.push(value.Int(0))
	case value.KindFloat:
		vm.push(value.Float(0))
	case value.KindString:
		str := vm.intern.InternString("")
		result := value.StringValue(str)
		value.Reference(result)
		vm.push(result)
		value.Dereference(v)
	case value.KindArray:
		for _, item := range v.Arr.Items {
			value.Dereference(item)
		}
		v.Arr.Items = v.Arr.Items[:0]
		vm.push(v)
	case value.KindTable:
		v.Tab.Clear()
		vm.push(v)
	default:
		vm.push(value.None)
	}
	return nil
}

// deleteValue implements DELETE: removes and returns an Array element
// by integer index, or a Table entry by string key.
func (vm *VM) deleteValue() error {
	i := vm.pop()
	v := vm.pop()
	switch v.Kind {
	case value.KindArray:
		if i.Kind != value.KindInt {
			value.Dereference(i)
			value.Dereference(v)
			return fmt.Errorf("Integer required to delete from array.")
		}
		idx, ok := v.Arr.Resolve(i.I)
		if !ok {
			value.Dereference(i)
			value.Dereference(v)
			return fmt.Errorf("Array index out of bounds %d.", i.I)
		}
		removed, _ := v.Arr.RemoveAt(idx)
		vm.push(removed)
		value.Dereference(v)
		return nil
	case value.KindTable:
		if i.Kind != value.KindString {
			value.Dereference(i)
			value.Dereference(v)
			return fmt.Errorf("String required to delete from table.")
		}
		removed, ok := v.Tab.Remove(i.Str)
		value.Dereference(i)
		if !ok {
			removed = value.None
		}
		vm.push(removed)
		value.Dereference(v)
		return nil
	default:
		value.Dereference(i)
		value.Dereference(v)
		return fmt.Errorf("Expected `Array` or `Table` for `delete` function, but was `%s`.", v.Kind)
	}
}

// indexOf implements INDEX: a substring search in a String, a
// value.Equal scan of an Array, or a reverse value.Equal lookup of a
// Table's keys.
func (vm *VM) indexOf() error {
	b := vm.pop()
	a := vm.pop()
	switch a.Kind {
	case value.KindString:
		if b.Kind != value.KindString {
			value.Dereference(a)
			value.Dereference(b)
			return fmt.Errorf("Expected substring for 2nd argument of `index` function.")
		}
		idx := indexOfSubstring(string(a.Str.Bytes), string(b.Str.Bytes))
		vm.push(value.Int(idx))
		value.Dereference(a)
		value.Dereference(b)
		return nil
	case value.KindArray:
		idx := int64(-1)
		for n, item := range a.Arr.Items {
			if value.Equal(item, b) {
				idx = int64(n)
				break
			}
		}
		vm.push(value.Int(idx))
		value.Dereference(a)
		value.Dereference(b)
		return nil
	case value.KindTable:
		var found value.Value
		ok := false
		for _, k := range a.Tab.Keys() {
			v, _ := a.Tab.GetByBytes([]byte(k))
			if value.Equal(v, b) {
				found = value.StringValue(vm.intern.InternString(k))
				ok = true
				break
			}
		}
		if !ok {
			vm.push(value.None)
		} else {
			value.Reference(found)
			vm.push(found)
		}
		value.Dereference(a)
		value.Dereference(b)
		return nil
	default:
		value.Dereference(a)
		value.Dereference(b)
		return fmt.Errorf("Expected `String`, `Array`, or `Table` for `index` function, but was `%s`.", a.Kind)
	}
}

func indexOfSubstring(s, sub string) int64 {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return int64(i)
		}
	}
	return -1
}

// typeOf implements TYPE: returns the interned name of v's Kind.
func (vm *VM) typeOf() error {
	v := vm.pop()
	name := v.Kind.String()
	str := vm.intern.InternString(name)
	result := value.StringValue(str)
	value.Reference(result)
	vm.push(result)
	value.Dereference(v)
	return nil
}

// toInteger implements int(x): numeric cast, or best-effort string
// parse that yields None on failure rather than erroring.
func (vm *VM) toInteger() error {
	v := vm.pop()
	switch v.Kind {
	case value.KindInt:
		vm.push(v)
	case value.KindFloat:
		vm.push(value.Int(int64(v.F)))
	case value.KindString:
		n, err := strconv.ParseFloat(string(v.Str.Bytes), 64)
		if err != nil {
			vm.push(value.None)
		} else {
			vm.push(value.Int(int64(n)))
		}
		value.Dereference(v)
	default:
		value.Dereference(v)
		return fmt.Errorf("Can't cast `%s` to an integer.", v.Kind)
	}
	return nil
}

// toFloat implements float(x), mirroring toInteger.
func (vm *VM) toFloat() error {
	v := vm.pop()
	switch v.Kind {
	case value.KindInt:
		vm.push(value.Float(float64(v.I)))
	case value.KindFloat:
		vm.push(v)
	case value.KindString:
		n, err := strconv.ParseFloat(string(v.Str.Bytes), 64)
		if err != nil {
			vm.push(value.None)
		} else {
			vm.push(value.Float(n))
		}
		value.Dereference(v)
	default:
		value.Dereference(v)
		return fmt.Errorf("Can't cast `%s` to a float.", v.Kind)
	}
	return nil
}

// toString implements string(x): every kind renders via
// value.ToDisplayString, the same formatting `print` uses.
func (vm *VM) toString() error {
	v := vm.pop()
	str := vm.intern.InternString(value.ToDisplayString(v))
	result := value.StringValue(str)
	value.Reference(result)
	vm.push(result)
	value.Dereference(v)
	return nil
}

// arrayPush implements ARRAY_PUSH (`push(array, value)`): Array.Push
// already references the appended value, so the operand relocates
// to become the expression's result.
func (vm *VM) arrayPush() error {
	val := vm.pop()
	arr := vm.pop()
	if arr.Kind != value.KindArray {
		value.Dereference(val)
		value.Dereference(arr)
		return fmt.Errorf("Expected `Array` for 1st argument of `push`, but was `%s`.", arr.Kind)
	}
	arr.Arr.Push(val)
	vm.push(val)
	value.Dereference(arr)
	return nil
}

// arrayPop implements ARRAY_POP (`pop(array)`): Array.Pop transfers
// ownership of the removed element with no net refcount change.
func (vm *VM) arrayPop() error {
	arr := vm.pop()
	if arr.Kind != value.KindArray {
		value.Dereference(arr)
		return fmt.Errorf("Expected `Array` for 1st argument of `pop`, but was `%s`.", arr.Kind)
	}
	v, ok := arr.Arr.Pop()
	if !ok {
		v = value.None
	}
	vm.push(v)
	value.Dereference(arr)
	return nil
}

// arrayInsert implements ARRAY_INSERT (`insert(array, index, value)`):
// Array.Insert already references the inserted value, matching
// arrayPush's relocation.
func (vm *VM) arrayInsert() error {
	p := vm.pop()
	i := vm.pop()
	v := vm.pop()
	if v.Kind != value.KindArray {
		value.Dereference(p)
		value.Dereference(i)
		value.Dereference(v)
		return fmt.Errorf("Expected `Array` for 1st argument of `insert`, but was `%s`.", v.Kind)
	}
	if i.Kind != value.KindInt {
		value.Dereference(p)
		value.Dereference(i)
		value.Dereference(v)
		return fmt.Errorf("Expected `Integer` for 2nd argument of `insert`, but was `%s`.", i.Kind)
	}
	n := int64(len(v.Arr.Items))
	idx := i.I
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx > n {
		value.Dereference(p)
		value.Dereference(v)
		return fmt.Errorf("Array index out of bounds %d.", i.I)
	}
	v.Arr.Insert(int(idx), p)
	vm.push(p)
	value.Dereference(v)
	return nil
}
