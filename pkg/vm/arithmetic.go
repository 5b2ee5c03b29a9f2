package vm

import (
	"fmt"

	"github.com/hymnlang/hymn/pkg/opcode"
	"github.com/hymnlang/hymn/pkg/value"
)

func isNumber(v value.Value) bool { return v.Kind == value.KindInt || v.Kind == value.KindFloat }

func asFloat(v value.Value) float64 {
	if v.Kind == value.KindInt {
		return float64(v.I)
	}
	return v.F
}

// numericSum adds two numeric values, promoting to float if either
// operand is a float -- used by both ADD and ADD_TWO_LOCAL.
func numericSum(a, b value.Value) (value.Value, error) {
	if !isNumber(a) || !isNumber(b) {
		return value.Value{}, fmt.Errorf("Expected two numbers for `+`.")
	}
	if a.Kind == value.KindInt && b.Kind == value.KindInt {
		return value.Int(a.I + b.I), nil
	}
	return value.Float(asFloat(a) + asFloat(b)), nil
}

func addAmount(v value.Value, amount int64) value.Value {
	if v.Kind == value.KindFloat {
		return value.Float(v.F + float64(amount))
	}
	return value.Int(v.I + amount)
}

// binaryAdd implements ADD: numeric addition with int/float promotion,
// or string concatenation when both operands are strings (spec.md §4.3
// "Arithmetic").
func (vm *VM) binaryAdd() error {
	b := vm.pop()
	a := vm.pop()
	value.Dereference(b)
	value.Dereference(a)
	if a.Kind == value.KindString && b.Kind == value.KindString {
		concatenated := string(a.Str.Bytes) + string(b.Str.Bytes)
		str := vm.intern.InternString(concatenated)
		result := value.StringValue(str)
		value.Reference(result)
		vm.push(result)
		return nil
	}
	sum, err := numericSum(a, b)
	if err != nil {
		return err
	}
	vm.push(sum)
	return nil
}

func (vm *VM) numericBinary(floatOp func(a, b float64) float64, intOp func(a, b int64) int64) error {
	b := vm.pop()
	a := vm.pop()
	value.Dereference(b)
	value.Dereference(a)
	if !isNumber(a) || !isNumber(b) {
		return fmt.Errorf("Expected two numbers.")
	}
	if a.Kind == value.KindInt && b.Kind == value.KindInt {
		vm.push(value.Int(intOp(a.I, b.I)))
	} else {
		vm.push(value.Float(floatOp(asFloat(a), asFloat(b))))
	}
	return nil
}

func (vm *VM) divide() error {
	b := vm.pop()
	a := vm.pop()
	value.Dereference(b)
	value.Dereference(a)
	if !isNumber(a) || !isNumber(b) {
		return fmt.Errorf("Expected two numbers for `/`.")
	}
	if a.Kind == value.KindInt && b.Kind == value.KindInt {
		if b.I == 0 {
			return fmt.Errorf("Division by zero.")
		}
		if a.I%b.I == 0 {
			vm.push(value.Int(a.I / b.I))
		} else {
			vm.push(value.Float(asFloat(a) / asFloat(b)))
		}
		return nil
	}
	vm.push(value.Float(asFloat(a) / asFloat(b)))
	return nil
}

func (vm *VM) modulo() error {
	b := vm.pop()
	a := vm.pop()
	value.Dereference(b)
	value.Dereference(a)
	if a.Kind != value.KindInt || b.Kind != value.KindInt {
		return fmt.Errorf("Expected two integers for `%%`.")
	}
	if b.I == 0 {
		return fmt.Errorf("Division by zero.")
	}
	vm.push(value.Int(a.I % b.I))
	return nil
}

func (vm *VM) negate() error {
	v := vm.pop()
	value.Dereference(v)
	switch v.Kind {
	case value.KindInt:
		vm.push(value.Int(-v.I))
	case value.KindFloat:
		vm.push(value.Float(-v.F))
	default:
		return fmt.Errorf("Expected a number for unary `-`.")
	}
	return nil
}

func (vm *VM) bitwiseBinary(op opcode.Opcode) error {
	b := vm.pop()
	a := vm.pop()
	value.Dereference(b)
	value.Dereference(a)
	if a.Kind != value.KindInt || b.Kind != value.KindInt {
		return fmt.Errorf("Expected two integers for bitwise operator.")
	}
	switch op {
	case opcode.BitAnd:
		vm.push(value.Int(a.I & b.I))
	case opcode.BitOr:
		vm.push(value.Int(a.I | b.I))
	case opcode.BitXor:
		vm.push(value.Int(a.I ^ b.I))
	case opcode.LeftShift:
		vm.push(value.Int(a.I << uint(b.I)))
	case opcode.RightShift:
		vm.push(value.Int(a.I >> uint(b.I)))
	}
	return nil
}

func compareNumeric(op opcode.Opcode, a, b float64) bool {
	switch op {
	case opcode.Less:
		return a < b
	case opcode.LessEqual:
		return a <= b
	case opcode.Greater:
		return a > b
	case opcode.GreaterEqual:
		return a >= b
	}
	return false
}

func (vm *VM) compareBinary(op opcode.Opcode) error {
	b := vm.pop()
	a := vm.pop()
	value.Dereference(b)
	value.Dereference(a)
	switch {
	case isNumber(a) && isNumber(b):
		vm.push(value.Bool(compareNumeric(op, asFloat(a), asFloat(b))))
	case a.Kind == value.KindString && b.Kind == value.KindString:
		sa, sb := string(a.Str.Bytes), string(b.Str.Bytes)
		var r bool
		switch op {
		case opcode.Less:
			r = sa < sb
		case opcode.LessEqual:
			r = sa <= sb
		case opcode.Greater:
			r = sa > sb
		case opcode.GreaterEqual:
			r = sa >= sb
		}
		vm.push(value.Bool(r))
	default:
		return fmt.Errorf("Expected two numbers or two strings for comparison.")
	}
	return nil
}

// fusedCompare evaluates a peephole-fused compare+jump opcode directly,
// without materializing the intermediate boolean (pkg/compiler's
// peephole.go fuseCompareJump).
func (vm *VM) fusedCompare(op opcode.Opcode) (bool, error) {
	b := vm.pop()
	a := vm.pop()
	value.Dereference(b)
	value.Dereference(a)
	switch op {
	case opcode.JumpIfEqual:
		return value.Equal(a, b), nil
	case opcode.JumpIfNotEqual:
		return !value.Equal(a, b), nil
	}
	cmpOp := map[opcode.Opcode]opcode.Opcode{
		opcode.JumpIfLess:         opcode.Less,
		opcode.JumpIfLessEqual:    opcode.LessEqual,
		opcode.JumpIfGreater:      opcode.Greater,
		opcode.JumpIfGreaterEqual: opcode.GreaterEqual,
	}[op]
	switch {
	case isNumber(a) && isNumber(b):
		return compareNumeric(cmpOp, asFloat(a), asFloat(b)), nil
	case a.Kind == value.KindString && b.Kind == value.KindString:
		sa, sb := string(a.Str.Bytes), string(b.Str.Bytes)
		switch cmpOp {
		case opcode.Less:
			return sa < sb, nil
		case opcode.LessEqual:
			return sa <= sb, nil
		case opcode.Greater:
			return sa > sb, nil
		case opcode.GreaterEqual:
			return sa >= sb, nil
		}
	}
	return false, fmt.Errorf("Expected two numbers or two strings for comparison.")
}
