// Package opcode defines the Hymn bytecode instruction set.
//
// Opcodes are single bytes so instruction streams stay compact. Each
// opcode's operand width (0, 1, or 2 bytes) is fixed and documented
// below; pkg/compiler emits operands in that width and pkg/vm reads
// them back the same way. Two-byte operands are big-endian.
package opcode

// Opcode is a single bytecode instruction operation.
type Opcode byte

const (
	// Stack
	Pop Opcode = iota
	PopTwo
	PopN // 1-byte operand: count
	Duplicate

	// Literals
	None
	True
	False
	Constant // 2-byte operand: constant pool index

	// Arithmetic
	Add
	Subtract
	Multiply
	Divide
	Modulo
	Negate
	Increment      // 1-byte operand: amount (1..254)
	AddTwoLocal    // 2x 1-byte operands: local slots s, t
	IncrementLocal // 2x 1-byte operands: local slot s, amount
	IncrementLocalAndSet

	// Bitwise
	BitAnd
	BitOr
	BitXor
	BitNot
	LeftShift
	RightShift

	// Compare
	Equal
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual

	// Fused compare+jump (peephole-generated only)
	JumpIfEqual
	JumpIfNotEqual
	JumpIfLess
	JumpIfLessEqual
	JumpIfGreater
	JumpIfGreaterEqual

	// Logical
	Not

	// Variables
	DefineGlobal // 2-byte operand: constant pool index (name)
	GetGlobal
	SetGlobal
	GetLocal // 1-byte operand: local slot
	SetLocal

	// Objects
	GetProperty // 2-byte operand: constant pool index (name)
	SetProperty
	GetDynamic
	SetDynamic
	Slice
	Len
	Keys
	Copy
	Clear
	Delete
	Index
	Type
	ToInteger
	ToFloat
	ToString

	// Arrays
	ArrayPush
	ArrayPop
	ArrayInsert

	// Control
	Jump        // 2-byte operand: forward offset
	JumpIfFalse // 2-byte operand: forward offset
	JumpIfTrue  // 2-byte operand: forward offset
	Loop        // 2-byte operand: backward offset

	// Calls
	Call // 1-byte operand: arg count
	TailCall
	Return

	// Exceptions
	Throw

	// I/O
	Print

	// Modules
	Use
)

// operandWidths maps each opcode to the number of operand bytes that
// follow it in the instruction stream.
var operandWidths = map[Opcode]int{
	Pop: 0, PopTwo: 0, PopN: 1, Duplicate: 0,
	None: 0, True: 0, False: 0, Constant: 2,
	Add: 0, Subtract: 0, Multiply: 0, Divide: 0, Modulo: 0, Negate: 0,
	Increment: 1, AddTwoLocal: 2, IncrementLocal: 2, IncrementLocalAndSet: 2,
	BitAnd: 0, BitOr: 0, BitXor: 0, BitNot: 0, LeftShift: 0, RightShift: 0,
	Equal: 0, NotEqual: 0, Less: 0, LessEqual: 0, Greater: 0, GreaterEqual: 0,
	JumpIfEqual: 2, JumpIfNotEqual: 2, JumpIfLess: 2, JumpIfLessEqual: 2,
	JumpIfGreater: 2, JumpIfGreaterEqual: 2,
	Not: 0,
	DefineGlobal: 2, GetGlobal: 2, SetGlobal: 2, GetLocal: 1, SetLocal: 1,
	GetProperty: 2, SetProperty: 2, GetDynamic: 0, SetDynamic: 0,
	Slice: 0, Len: 0, Keys: 0, Copy: 0, Clear: 0, Delete: 0, Index: 0,
	Type: 0, ToInteger: 0, ToFloat: 0, ToString: 0,
	ArrayPush: 0, ArrayPop: 0, ArrayInsert: 0,
	Jump: 2, JumpIfFalse: 2, JumpIfTrue: 2, Loop: 2,
	Call: 1, TailCall: 1, Return: 0,
	Throw: 0,
	Print: 0,
	Use:   0,
}

// OperandWidth returns the number of operand bytes following op in the
// instruction stream.
func OperandWidth(op Opcode) int { return operandWidths[op] }

// fusedFromCompare maps a comparison opcode to the fused jump taken when
// that comparison holds, used for `CMP` + `JUMP_IF_TRUE`. fusedInverse
// maps a fused jump-on-compare opcode to the fused opcode testing the
// negated condition, used for `CMP` + `JUMP_IF_FALSE`.
var fusedFromCompare = map[Opcode]Opcode{
	Equal:        JumpIfEqual,
	NotEqual:     JumpIfNotEqual,
	Less:         JumpIfLess,
	LessEqual:    JumpIfLessEqual,
	Greater:      JumpIfGreater,
	GreaterEqual: JumpIfGreaterEqual,
}

var fusedInverse = map[Opcode]Opcode{
	JumpIfEqual:        JumpIfNotEqual,
	JumpIfNotEqual:     JumpIfEqual,
	JumpIfLess:         JumpIfGreaterEqual,
	JumpIfLessEqual:    JumpIfGreater,
	JumpIfGreater:      JumpIfLessEqual,
	JumpIfGreaterEqual: JumpIfLess,
}

// FusedJump returns the fused jump opcode for a comparison opcode. ok is
// false if cmp isn't a comparison opcode.
func FusedJump(cmp Opcode) (Opcode, bool) {
	f, ok := fusedFromCompare[cmp]
	return f, ok
}

// InverseFusedJump returns the fused jump testing the logical negation
// of fused's condition (used when the comparison feeds JUMP_IF_FALSE).
func InverseFusedJump(fused Opcode) (Opcode, bool) {
	f, ok := fusedInverse[fused]
	return f, ok
}

var names = map[Opcode]string{
	Pop: "POP", PopTwo: "POP_TWO", PopN: "POP_N", Duplicate: "DUPLICATE",
	None: "NONE", True: "TRUE", False: "FALSE", Constant: "CONSTANT",
	Add: "ADD", Subtract: "SUBTRACT", Multiply: "MULTIPLY", Divide: "DIVIDE",
	Modulo: "MODULO", Negate: "NEGATE", Increment: "INCREMENT",
	AddTwoLocal: "ADD_TWO_LOCAL", IncrementLocal: "INCREMENT_LOCAL",
	IncrementLocalAndSet: "INCREMENT_LOCAL_AND_SET",
	BitAnd:               "BIT_AND", BitOr: "BIT_OR", BitXor: "BIT_XOR", BitNot: "BIT_NOT",
	LeftShift: "LEFT_SHIFT", RightShift: "RIGHT_SHIFT",
	Equal: "EQUAL", NotEqual: "NOT_EQUAL", Less: "LESS", LessEqual: "LESS_EQUAL",
	Greater: "GREATER", GreaterEqual: "GREATER_EQUAL",
	JumpIfEqual: "JUMP_IF_EQUAL", JumpIfNotEqual: "JUMP_IF_NOT_EQUAL",
	JumpIfLess: "JUMP_IF_LESS", JumpIfLessEqual: "JUMP_IF_LESS_EQUAL",
	JumpIfGreater: "JUMP_IF_GREATER", JumpIfGreaterEqual: "JUMP_IF_GREATER_EQUAL",
	Not:          "NOT",
	DefineGlobal: "DEFINE_GLOBAL", GetGlobal: "GET_GLOBAL", SetGlobal: "SET_GLOBAL",
	GetLocal: "GET_LOCAL", SetLocal: "SET_LOCAL",
	GetProperty: "GET_PROPERTY", SetProperty: "SET_PROPERTY",
	GetDynamic: "GET_DYNAMIC", SetDynamic: "SET_DYNAMIC",
	Slice: "SLICE", Len: "LEN", Keys: "KEYS", Copy: "COPY", Clear: "CLEAR",
	Delete: "DELETE", Index: "INDEX", Type: "TYPE",
	ToInteger: "TO_INTEGER", ToFloat: "TO_FLOAT", ToString: "TO_STRING",
	ArrayPush: "ARRAY_PUSH", ArrayPop: "ARRAY_POP", ArrayInsert: "ARRAY_INSERT",
	Jump: "JUMP", JumpIfFalse: "JUMP_IF_FALSE", JumpIfTrue: "JUMP_IF_TRUE", Loop: "LOOP",
	Call: "CALL", TailCall: "TAIL_CALL", Return: "RETURN",
	Throw: "THROW",
	Print: "PRINT",
	Use:   "USE",
}

func (op Opcode) String() string {
	if n, ok := names[op]; ok {
		return n
	}
	return "UNKNOWN"
}
