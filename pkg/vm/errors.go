// Package vm implements Hymn's stack-based bytecode interpreter.
package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hymnlang/hymn/pkg/value"
)

// StackFrame captures one call frame's identity at the moment a
// RuntimeError was raised, used only for the error's rendered trace --
// the live Frame type used during execution is unwound long before the
// error reaches the caller.
type StackFrame struct {
	Name       string // function name, or "<script>" for the top-level frame
	Script     string // nearest enclosing script path, "" if none
	SourceLine int    // source line the active instruction was compiled from
}

// RuntimeError is a thrown-and-uncaught Hymn exception: a script `throw`
// or a native function's raised exception value. Message is the thrown
// value's display string; the value itself is not kept. A VM-detected
// fault (arity mismatch, wrong operand type, out-of-range index) that no
// `try` catches is returned as a plain Go error instead, with no stack
// trace.
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

// Error implements the error interface, rendering the message followed
// by the call stack active at the moment of the throw, innermost frame
// first (spec.md §7: "at <func> <script>:<row>" per frame).
func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, f := range e.StackTrace {
		b.WriteString(fmt.Sprintf("\n  at %s %s:%d", f.Name, f.Script, f.SourceLine))
	}
	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}

// captureStackTrace snapshots the active frame stack, innermost first,
// before unwind tears it down looking for a handler -- by the time
// uncaught runs there may be no frames left to read, so anything that
// wants a trace in its error must capture one first.
func (vm *VM) captureStackTrace() []StackFrame {
	trace := make([]StackFrame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		name := "<script>"
		if f.fn.Name != nil {
			name = *f.fn.Name
		}
		var script string
		for j := i; j >= 0; j-- {
			if s := vm.frames[j].fn.Script; s != nil {
				script = *s
				break
			}
		}
		line := 0
		if ip := f.ip - 1; ip >= 0 && ip < len(f.fn.Code.Lines) {
			line = f.fn.Code.Lines[ip]
		}
		trace = append(trace, StackFrame{Name: name, Script: script, SourceLine: line})
	}
	return trace
}

// unwind searches outward from the innermost active frame for a `try`
// block whose protected range covers the instruction that just threw
// (spec.md §4.3 THROWING). Each frame it passes through without a match
// is torn down entirely, exactly like a RETURN with no value to keep.
// Reports whether a handler bound exc into its `except` local (true) --
// execution resumes right there -- or every frame was unwound without
// one (false), leaving exc owned by the caller (see uncaught).
func (vm *VM) unwind(exc value.Value) bool {
	for vm.frameCount > 0 {
		f := vm.frame()
		ip := f.ip - 1
		if r, ok := f.fn.ExceptionRangeFor(ip); ok {
			slot := f.base + r.LocalDepth
			for i := slot; i < vm.sp; i++ {
				value.Dereference(vm.stack[i])
			}
			vm.sp = slot
			vm.push(exc)
			f.ip = r.EndIP
			return true
		}
		start := f.calleeSlot
		if start < 0 {
			start = 0
		}
		for i := start; i < vm.sp; i++ {
			value.Dereference(vm.stack[i])
		}
		if f.calleeSlot >= 0 {
			vm.sp = f.calleeSlot
		} else {
			vm.sp = 0
		}
		vm.frameCount--
	}
	return false
}

// raise promotes a VM-detected fault (arity mismatch, wrong operand
// type, out-of-range index) to a catchable Hymn exception carrying msg
// as its string value, following the same unwind path THROW uses.
// Reports whether some enclosing `try` caught it; the caller passes the
// original Go error through verbatim when it did not.
func (vm *VM) raise(msg string) bool {
	s := vm.intern.InternString(msg)
	return vm.raiseValue(value.StringValue(s))
}

// raiseValue is raise's more general form, used for native-function
// exceptions (pkg/host's "raise a typed exception value", spec.md §4.6)
// where the thrown value isn't necessarily a string.
func (vm *VM) raiseValue(exc value.Value) bool {
	value.Reference(exc)
	if vm.unwind(exc) {
		return true
	}
	value.Dereference(exc)
	return false
}

// nativeError turns a native function's returned error into either a
// handled catch (nil) or the error to propagate, recognizing
// *value.Exception as a request to raise a catchable Hymn exception
// (spec.md §4.6) rather than abort the run outright. exc.Val arrives
// owning exactly one reference (pkg/host's Raise establishes it before
// constructing the Exception) and that single reference is consumed
// exactly once here, the same way THROW consumes its popped operand:
// relocated onto the stack by a caught unwind, or finalized by uncaught.
func (vm *VM) nativeError(err error) error {
	var exc *value.Exception
	if errors.As(err, &exc) {
		trace := vm.captureStackTrace()
		if !vm.unwind(exc.Val) {
			return vm.uncaught(exc.Val, trace)
		}
		return nil
	}
	return err
}

// uncaught finalizes an exception that unwound every active frame
// without being caught, into the Go error Run reports to its caller.
// trace is nil for a user `throw expr` (spec.md §7: thrown as-is, no
// automatic stack trace) and the pre-unwind snapshot for a native
// function's raised exception.
func (vm *VM) uncaught(exc value.Value, trace []StackFrame) error {
	msg := value.ToDisplayString(exc)
	value.Dereference(exc)
	return newRuntimeError(msg, trace)
}
