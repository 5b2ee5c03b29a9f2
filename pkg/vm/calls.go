package vm

import (
	"fmt"

	"github.com/hymnlang/hymn/pkg/value"
)

// call implements CALL n: push a new frame for a compiled function, or
// invoke a native function directly with no frame at all. Arguments'
// existing stack references relocate into the callee's parameter locals
// at zero cost (spec.md §4.4 "calling convention").
func (vm *VM) call(n int) error {
	calleeSlot := vm.sp - 1 - n
	callee := vm.stack[calleeSlot]
	switch callee.Kind {
	case value.KindFunc:
		if callee.Fn.Arity != n {
			return fmt.Errorf("Expected %d argument(s) but got %d.", callee.Fn.Arity, n)
		}
		if vm.frameCount >= maxFrames {
			return fmt.Errorf("Stack overflow.")
		}
		vm.frames[vm.frameCount] = Frame{fn: callee.Fn, ip: 0, base: calleeSlot + 1, calleeSlot: calleeSlot}
		vm.frameCount++
		return nil
	case value.KindNativeFunc:
		args := append([]value.Value(nil), vm.stack[calleeSlot+1:vm.sp]...)
		result, err := callee.Native.Fn(&value.NativeCall{Args: args, Host: vm.NativeHost})
		for i := calleeSlot; i < vm.sp; i++ {
			value.Dereference(vm.stack[i])
		}
		vm.sp = calleeSlot
		if err != nil {
			return vm.nativeError(err)
		}
		value.Reference(result)
		vm.push(result)
		return nil
	default:
		return fmt.Errorf("`%s` is not callable.", callee.Kind)
	}
}

// tailCall implements TAIL_CALL n: the callee replaces the current
// frame instead of nesting a new one, so a chain of tail calls runs in
// constant stack space regardless of recursion depth.
func (vm *VM) tailCall(n int) error {
	f := vm.frame()
	calleeSlot := vm.sp - 1 - n
	callee := vm.stack[calleeSlot]

	for i := f.calleeSlot; i < calleeSlot; i++ {
		value.Dereference(vm.stack[i])
	}
	copy(vm.stack[f.calleeSlot:], vm.stack[calleeSlot:vm.sp])
	vm.sp = f.calleeSlot + n + 1

	switch callee.Kind {
	case value.KindFunc:
		if callee.Fn.Arity != n {
			return fmt.Errorf("Expected %d argument(s) but got %d.", callee.Fn.Arity, n)
		}
		f.fn = callee.Fn
		f.ip = 0
		f.base = f.calleeSlot + 1
		return nil
	case value.KindNativeFunc:
		args := append([]value.Value(nil), vm.stack[f.calleeSlot+1:vm.sp]...)
		result, err := callee.Native.Fn(&value.NativeCall{Args: args, Host: vm.NativeHost})
		for i := f.calleeSlot; i < vm.sp; i++ {
			value.Dereference(vm.stack[i])
		}
		vm.sp = f.calleeSlot
		if err != nil {
			return vm.nativeError(err)
		}
		value.Reference(result)
		vm.push(result)
		vm.frameCount--
		return nil
	default:
		return fmt.Errorf("`%s` is not callable.", callee.Kind)
	}
}

// doReturn implements RETURN: the return value relocates to the call
// site at zero cost; every other slot the returning frame owned
// (parameters, locals, temporaries, and the callee value itself) is
// torn down. Reports whether the VM has nothing left to execute (the
// outermost script frame just returned).
func (vm *VM) doReturn() bool {
	f := vm.frame()
	returnVal := vm.pop()
	start := f.calleeSlot
	if start < 0 {
		start = 0
	}
	for i := start; i < vm.sp; i++ {
		value.Dereference(vm.stack[i])
	}
	outermost := f.calleeSlot < 0
	if outermost {
		vm.sp = 0
	} else {
		vm.sp = f.calleeSlot
	}
	vm.push(returnVal)
	vm.frameCount--
	return outermost
}

// use implements the `use <path>` statement: resolve and run a module's
// top-level code once, for its side effects on globals.
func (vm *VM) use() error {
	path := vm.pop()
	value.Dereference(path)
	if path.Kind != value.KindString {
		return fmt.Errorf("Expected String for `use` path.")
	}
	if vm.Loader == nil {
		return fmt.Errorf("Modules are not available in this VM.")
	}
	fn, err := vm.Loader.Resolve(string(path.Str.Bytes), vm.nearestScript())
	if err != nil {
		return err
	}
	if vm.frameCount >= maxFrames {
		return fmt.Errorf("Stack overflow.")
	}
	depth := vm.frameCount
	callee := value.Value{Kind: value.KindFunc, Fn: fn}
	value.Reference(callee)
	vm.push(callee)
	vm.frames[vm.frameCount] = Frame{fn: fn, ip: 0, base: vm.sp, calleeSlot: vm.sp - 1}
	vm.frameCount++
	return vm.runUntil(depth)
}
