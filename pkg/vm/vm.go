// Package vm implements Hymn's stack-based bytecode interpreter: a
// frame stack of active calls, a single contiguous value stack shared by
// every frame (locals live directly in their frame's window of it, the
// same convention the compiler assumes when it hands out local slot
// numbers), and a big opcode dispatch loop.
//
// Refcounting discipline (spec.md §4.4): every heap value sitting on the
// value stack carries exactly one logical reference, accounted for by
// whatever pushed it there (a fresh literal, a GET that duplicates an
// existing reference, a call's return value). Popping a value to
// consume it -- to combine it into an arithmetic result, to hand it to
// a container's Put/Push, to discard a statement result -- always pairs
// with Dereference. Moving a value from one owning slot to another (a
// `let` binding reusing its initializer's stack slot, an argument
// becoming a parameter local, a caught exception becoming its `except`
// binding) is a zero-cost relocation: the same reference just changes
// address, no Reference/Dereference pair needed.
package vm

import (
	"fmt"
	"io"

	"github.com/hymnlang/hymn/pkg/opcode"
	"github.com/hymnlang/hymn/pkg/value"
)

const (
	maxFrames  = 64
	frameSlots = 256
	maxStack   = maxFrames * frameSlots
)

// Frame is one active call's bookkeeping. calleeSlot is the stack index
// of the function value itself, one below base (where its first local
// lives); a call's teardown and a tail call's relocation both anchor on
// it.
type Frame struct {
	fn         *value.Func
	ip         int
	base       int
	calleeSlot int
}

// ModuleLoader resolves a `use` statement's path to a compiled module
// function, run once for its side effects on the VM's globals. The
// concrete implementation lives in pkg/module so pkg/vm stays decoupled
// from path resolution and caching policy.
type ModuleLoader interface {
	Resolve(path, fromScript string) (*value.Func, error)
}

// VM is one Hymn interpreter instance: its own value stack, call-frame
// stack, globals, and string intern set. Nothing about it is safe for
// concurrent use from multiple goroutines.
type VM struct {
	stack []value.Value
	sp    int

	frames     [maxFrames]Frame
	frameCount int

	globals map[string]value.Value
	intern  *value.InternSet

	Stdout io.Writer
	Loader ModuleLoader

	// NativeHost is passed as value.NativeCall.Host on every native
	// call, letting host bindings recover VM/host capabilities without
	// pkg/value importing pkg/host.
	NativeHost any
}

// New creates a VM sharing the given intern set (normally the same one
// the compiler used, so runtime-produced strings intern into the same
// table as compiled string constants).
func New(intern *value.InternSet) *VM {
	return &VM{
		stack:   make([]value.Value, maxStack),
		globals: make(map[string]value.Value),
		intern:  intern,
		Stdout:  io.Discard,
	}
}

// Global reads a global variable by name, for host bindings that expose
// values to or inspect values from Hymn code.
func (vm *VM) Global(name string) (value.Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// SetGlobal installs or overwrites a global variable from host code,
// following the same reference/dereference discipline DEFINE_GLOBAL
// uses at the bytecode level.
func (vm *VM) SetGlobal(name string, v value.Value) {
	if old, ok := vm.globals[name]; ok {
		value.Dereference(old)
	}
	value.Reference(v)
	vm.globals[name] = v
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() value.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) frame() *Frame {
	return &vm.frames[vm.frameCount-1]
}

// nearestScript walks the frame stack from innermost to outermost and
// returns the first script path it finds (spec.md §4.5 step 1): a
// `use` inside a regular function has no Script of its own (only the
// enclosing script frame does), so a `use` statement resolves its
// relative import against the nearest enclosing frame with one, not
// necessarily the frame it's called from.
func (vm *VM) nearestScript() string {
	for i := vm.frameCount - 1; i >= 0; i-- {
		if s := vm.frames[i].fn.Script; s != nil {
			return *s
		}
	}
	return ""
}

// Run executes a compiled top-level script function to completion,
// returning a Go error only if an exception propagated uncaught past
// the outermost frame.
func (vm *VM) Run(fn *value.Func) error {
	vm.sp = 0
	vm.frameCount = 1
	vm.frames[0] = Frame{fn: fn, ip: 0, base: 0, calleeSlot: -1}
	return vm.run()
}

// run drives execution until the frame stack unwinds to depth (0 for a
// top-level script run via Run, or the pre-call frame count for a
// module executed by the `use` statement).
func (vm *VM) run() error {
	return vm.runUntil(0)
}

func (vm *VM) runUntil(depth int) error {
	for vm.frameCount > depth {
		if err := vm.step(); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) step() error {
	f := vm.frame()
	code := f.fn.Code
	ip := f.ip
	op := opcode.Opcode(code.Instructions[ip])
	f.ip++

	switch op {
		case opcode.Pop:
			value.Dereference(vm.pop())

		case opcode.PopTwo:
			value.Dereference(vm.pop())
			value.Dereference(vm.pop())

		case opcode.PopN:
			n := int(code.ReadByte(f.ip))
			f.ip++
			for i := 0; i < n; i++ {
				value.Dereference(vm.pop())
			}

		case opcode.Duplicate:
			v := vm.peek(0)
			value.Reference(v)
			vm.push(v)

		case opcode.None:
			vm.push(value.None)
		case opcode.True:
			vm.push(value.Bool(true))
		case opcode.False:
			vm.push(value.Bool(false))

		case opcode.Constant:
			idx := code.ReadShort(f.ip)
			f.ip += 2
			v := cloneConstant(code.Constants[idx])
			value.Reference(v)
			vm.push(v)

		case opcode.Add:
			if err := vm.binaryAdd(); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}
		case opcode.Subtract:
			if err := vm.numericBinary(func(a, b float64) float64 { return a - b }, func(a, b int64) int64 { return a - b }); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}
		case opcode.Multiply:
			if err := vm.numericBinary(func(a, b float64) float64 { return a * b }, func(a, b int64) int64 { return a * b }); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}
		case opcode.Divide:
			if err := vm.divide(); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}
		case opcode.Modulo:
			if err := vm.modulo(); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}
		case opcode.Negate:
			if err := vm.negate(); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}

		case opcode.Increment:
			amount := int64(code.ReadByte(f.ip))
			f.ip++
			v := vm.pop()
			value.Dereference(v)
			vm.push(addAmount(v, amount))

		case opcode.AddTwoLocal:
			s := code.ReadByte(f.ip)
			t := code.ReadByte(f.ip + 1)
			f.ip += 2
			a := vm.stack[f.base+int(s)]
			b := vm.stack[f.base+int(t)]
			sum, err := numericSum(a, b)
			if err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}
			vm.push(sum)

		case opcode.IncrementLocal:
			s := code.ReadByte(f.ip)
			amount := int64(code.ReadByte(f.ip + 1))
			f.ip += 2
			vm.push(addAmount(vm.stack[f.base+int(s)], amount))

		case opcode.IncrementLocalAndSet:
			s := code.ReadByte(f.ip)
			amount := int64(code.ReadByte(f.ip + 1))
			f.ip += 2
			slot := f.base + int(s)
			vm.stack[slot] = addAmount(vm.stack[slot], amount)

		case opcode.BitAnd, opcode.BitOr, opcode.BitXor, opcode.LeftShift, opcode.RightShift:
			if err := vm.bitwiseBinary(op); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}
		case opcode.BitNot:
			v := vm.pop()
			value.Dereference(v)
			if v.Kind != value.KindInt {
				if !vm.raise("Expected Integer for `~`.") {
					return fmt.Errorf("expected Integer for `~`")
				}
				return nil
			}
			vm.push(value.Int(^v.I))

		case opcode.Equal:
			b, a := vm.pop(), vm.pop()
			value.Dereference(b)
			value.Dereference(a)
			vm.push(value.Bool(value.Equal(a, b)))
		case opcode.NotEqual:
			b, a := vm.pop(), vm.pop()
			value.Dereference(b)
			value.Dereference(a)
			vm.push(value.Bool(!value.Equal(a, b)))
		case opcode.Less, opcode.LessEqual, opcode.Greater, opcode.GreaterEqual:
			if err := vm.compareBinary(op); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}

		case opcode.JumpIfEqual, opcode.JumpIfNotEqual, opcode.JumpIfLess,
			opcode.JumpIfLessEqual, opcode.JumpIfGreater, opcode.JumpIfGreaterEqual:
			offset := code.ReadShort(f.ip)
			f.ip += 2
			cond, err := vm.fusedCompare(op)
			if err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}
			if cond {
				f.ip += int(offset)
			}

		case opcode.Not:
			v := vm.pop()
			t := value.Truthy(v)
			value.Dereference(v)
			vm.push(value.Bool(!t))

		case opcode.DefineGlobal:
			idx := code.ReadShort(f.ip)
			f.ip += 2
			name := string(code.Constants[idx].Str.Bytes)
			v := vm.pop()
			if old, ok := vm.globals[name]; ok {
				value.Dereference(old)
			}
			vm.globals[name] = v

		case opcode.GetGlobal:
			idx := code.ReadShort(f.ip)
			f.ip += 2
			name := string(code.Constants[idx].Str.Bytes)
			v, ok := vm.globals[name]
			if !ok {
				if !vm.raise(fmt.Sprintf("Undefined variable `%s`.", name)) {
					return fmt.Errorf("undefined variable %q", name)
				}
				return nil
			}
			value.Reference(v)
			vm.push(v)

		case opcode.SetGlobal:
			idx := code.ReadShort(f.ip)
			f.ip += 2
			name := string(code.Constants[idx].Str.Bytes)
			v := vm.peek(0)
			if old, ok := vm.globals[name]; ok {
				value.Dereference(old)
			}
			value.Reference(v)
			vm.globals[name] = v

		case opcode.GetLocal:
			slot := f.base + int(code.ReadByte(f.ip))
			f.ip++
			v := vm.stack[slot]
			value.Reference(v)
			vm.push(v)

		case opcode.SetLocal:
			slot := f.base + int(code.ReadByte(f.ip))
			f.ip++
			v := vm.peek(0)
			value.Dereference(vm.stack[slot])
			value.Reference(v)
			vm.stack[slot] = v

		case opcode.Jump:
			offset := code.ReadShort(f.ip)
			f.ip += 2 + int(offset)
		case opcode.JumpIfFalse:
			offset := code.ReadShort(f.ip)
			f.ip += 2
			if !value.Truthy(vm.peek(0)) {
				f.ip += int(offset)
			}
		case opcode.JumpIfTrue:
			offset := code.ReadShort(f.ip)
			f.ip += 2
			if value.Truthy(vm.peek(0)) {
				f.ip += int(offset)
			}
		case opcode.Loop:
			offset := code.ReadShort(f.ip)
			f.ip += 2 - int(offset)

		case opcode.Call:
			n := int(code.ReadByte(f.ip))
			f.ip++
			if err := vm.call(n); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}
		case opcode.TailCall:
			n := int(code.ReadByte(f.ip))
			f.ip++
			if err := vm.tailCall(n); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}
		case opcode.Return:
			if vm.doReturn() {
				return nil
			}

		case opcode.Throw:
			v := vm.pop()
			if !vm.unwind(v) {
				return vm.uncaught(v, nil)
			}

		case opcode.Print:
			v := vm.pop()
			fmt.Fprintln(vm.Stdout, value.ToDisplayString(v))
			value.Dereference(v)

		case opcode.Use:
			if err := vm.use(); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}

		case opcode.GetProperty, opcode.SetProperty, opcode.GetDynamic, opcode.SetDynamic,
			opcode.Slice, opcode.Len, opcode.Keys, opcode.Copy, opcode.Clear, opcode.Delete,
			opcode.Index, opcode.Type, opcode.ToInteger, opcode.ToFloat, opcode.ToString,
			opcode.ArrayPush, opcode.ArrayPop, opcode.ArrayInsert:
			if err := vm.objectOp(op, code, f); err != nil {
				if !vm.raise(err.Error()) {
					return err
				}
				return nil
			}

		default:
			return fmt.Errorf("unknown opcode %d", op)
		}

	return nil
}

// cloneConstant deep-clones array/table constants so every execution of
// a literal gets a fresh, independently-mutable object instead of
// sharing the compile-time template (value.NewArrayFrom's doc comment).
func cloneConstant(v value.Value) value.Value {
	switch v.Kind {
	case value.KindArray:
		return value.Value{Kind: value.KindArray, Arr: v.Arr.Copy()}
	case value.KindTable:
		return value.Value{Kind: value.KindTable, Tab: v.Tab.Copy()}
	default:
		return v
	}
}
