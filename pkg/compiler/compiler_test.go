package compiler

import (
	"bytes"
	"testing"

	"github.com/hymnlang/hymn/pkg/opcode"
	"github.com/hymnlang/hymn/pkg/value"
	"github.com/hymnlang/hymn/pkg/vm"
)

func compileOK(t *testing.T, source string) *value.Func {
	t.Helper()
	fn, errs := Compile(source, "test", value.NewInternSet())
	if len(errs) > 0 {
		t.Fatalf("unexpected compile errors: %v", errs)
	}
	return fn
}

func opcodesOf(t *testing.T, fn *value.Func) []opcode.Opcode {
	t.Helper()
	var ops []opcode.Opcode
	code := fn.Code.Instructions
	for i := 0; i < len(code); {
		op := opcode.Opcode(code[i])
		ops = append(ops, op)
		i += 1 + opcode.OperandWidth(op)
	}
	return ops
}

func TestCompileArithmeticExpression(t *testing.T) {
	fn := compileOK(t, "print 1 + 2 * 3")
	ops := opcodesOf(t, fn)
	want := []opcode.Opcode{opcode.Constant, opcode.Constant, opcode.Constant, opcode.Multiply, opcode.Add, opcode.Print, opcode.None, opcode.Return}
	if len(ops) != len(want) {
		t.Fatalf("opcodes = %v, want shape %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("opcode[%d] = %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestCompileErrorHasSourceExcerptAndCaret(t *testing.T) {
	_, errs := Compile("let x = \n", "test", value.NewInternSet())
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error (single-error policy), got %d: %v", len(errs), errs)
	}
	if errs[0].Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}

func TestNestedIfStatementsCompileFusedJumpsSafely(t *testing.T) {
	// Regression for the fused-jump-in-nested-conditionals hazard: this
	// must compile without error and must contain fused compare+jump
	// opcodes, proving the peephole boundary discipline keeps nesting
	// safe rather than disabling fusion near any conditional nesting.
	source := `
let a = 1
let b = 2
if a < b
	if a == 1
		print "inner"
	elif a == 2
		print "inner2"
	end
elif a > b
	print "outer-elif"
else
	print "outer-else"
end
`
	fn := compileOK(t, source)
	ops := opcodesOf(t, fn)
	sawFused := false
	for _, op := range ops {
		switch op {
		case opcode.JumpIfLess, opcode.JumpIfEqual, opcode.JumpIfGreater,
			opcode.JumpIfNotEqual, opcode.JumpIfLessEqual, opcode.JumpIfGreaterEqual:
			sawFused = true
		}
	}
	if !sawFused {
		t.Fatalf("expected at least one fused compare+jump opcode in nested-if bytecode, got %v", ops)
	}
}

func TestTailCallFusion(t *testing.T) {
	fn := compileOK(t, `
function loop(n)
	return loop(n)
end
`)
	var loopFn *value.Func
	for _, k := range fn.Code.Constants {
		if k.Kind == value.KindFunc {
			loopFn = k.Fn
		}
	}
	if loopFn == nil {
		t.Fatalf("expected function constant for loop")
	}
	ops := opcodesOf(t, loopFn)
	foundTailCall := false
	for _, op := range ops {
		if op == opcode.TailCall {
			foundTailCall = true
		}
		if op == opcode.Call {
			t.Fatalf("expected CALL+RETURN to fuse into TAIL_CALL, found bare CALL in %v", ops)
		}
	}
	if !foundTailCall {
		t.Fatalf("expected TAIL_CALL in %v", ops)
	}
}

func TestPopPopFusesIntoPopTwo(t *testing.T) {
	fn := compileOK(t, `let a = [1, 2]`)
	ops := opcodesOf(t, fn)
	for i := 0; i+1 < len(ops); i++ {
		if ops[i] == opcode.Pop && ops[i+1] == opcode.Pop {
			t.Fatalf("adjacent POP POP should have fused into POP_TWO: %v", ops)
		}
	}
}

func TestThreePopsFuseIntoPopN(t *testing.T) {
	fn := compileOK(t, `
let a = 1
let b = 2
let c = 3
begin
	let x = a
	let y = b
	let z = c
end
`)
	ops := opcodesOf(t, fn)
	found := false
	for _, op := range ops {
		if op == opcode.PopN {
			found = true
		}
		if op == opcode.Pop {
			t.Fatalf("expected the three-local block scope exit to fuse into POP_N, found bare POP in %v", ops)
		}
	}
	if !found {
		t.Fatalf("expected a POP_N in %v", ops)
	}
}

func TestConstantNegateFolds(t *testing.T) {
	fn := compileOK(t, `let a = -5`)
	ops := opcodesOf(t, fn)
	for _, op := range ops {
		if op == opcode.Negate {
			t.Fatalf("expected NEGATE of a literal to fold at compile time, found NEGATE in %v", ops)
		}
	}
	foundNegative := false
	for _, k := range fn.Code.Constants {
		if k.Kind == value.KindInt && k.I == -5 {
			foundNegative = true
		}
	}
	if !foundNegative {
		t.Fatalf("expected a folded -5 constant, got %v", fn.Code.Constants)
	}
}

func TestConstantAddFusesIntoIncrement(t *testing.T) {
	fn := compileOK(t, `
function f(n)
	return n + 1
end
`)
	var f *value.Func
	for _, k := range fn.Code.Constants {
		if k.Kind == value.KindFunc {
			f = k.Fn
		}
	}
	if f == nil {
		t.Fatalf("expected function constant")
	}
	ops := opcodesOf(t, f)
	foundIncrementLocal := false
	for _, op := range ops {
		if op == opcode.Add {
			t.Fatalf("expected CONSTANT+ADD+GET_LOCAL chain to fuse away ADD, found bare ADD in %v", ops)
		}
		if op == opcode.IncrementLocal {
			foundIncrementLocal = true
		}
	}
	if !foundIncrementLocal {
		t.Fatalf("expected GET_LOCAL+INCREMENT to fuse into INCREMENT_LOCAL, got %v", ops)
	}
}

func TestTwoLocalsAddFusesIntoAddTwoLocal(t *testing.T) {
	fn := compileOK(t, `
function f(a, b)
	return a + b
end
`)
	var f *value.Func
	for _, k := range fn.Code.Constants {
		if k.Kind == value.KindFunc {
			f = k.Fn
		}
	}
	if f == nil {
		t.Fatalf("expected function constant")
	}
	ops := opcodesOf(t, f)
	found := false
	for _, op := range ops {
		if op == opcode.AddTwoLocal {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected GET_LOCAL+GET_LOCAL+ADD to fuse into ADD_TWO_LOCAL, got %v", ops)
	}
}

func TestForLoopDefaultIncrementFusesIntoIncrementLocalAndSet(t *testing.T) {
	fn := compileOK(t, `
for i = 0, i < 10
	print i
end
`)
	ops := opcodesOf(t, fn)
	found := false
	for _, op := range ops {
		if op == opcode.IncrementLocalAndSet {
			found = true
		}
		if op == opcode.SetLocal {
			t.Fatalf("expected the default for-loop increment to fuse entirely into INCREMENT_LOCAL_AND_SET, found SET_LOCAL in %v", ops)
		}
	}
	if !found {
		t.Fatalf("expected INCREMENT_LOCAL_AND_SET in %v", ops)
	}
}

func TestSwitchStatementCompiles(t *testing.T) {
	compileOK(t, `
let x = 2
switch x
case 1
	print "one"
case 2 or 3
	print "two-or-three"
else
	print "other"
end
`)
}

func TestTryExceptRecordsExceptionRange(t *testing.T) {
	fn := compileOK(t, `
try
	throw "boom"
except e
	print e
end
`)
	if len(fn.Except) != 1 {
		t.Fatalf("expected exactly one exception range, got %d", len(fn.Except))
	}
	r := fn.Except[0]
	if r.StartIP >= r.EndIP {
		t.Fatalf("exception range must be non-empty: %+v", r)
	}
}

func TestForLoopCompiles(t *testing.T) {
	fn := compileOK(t, `
for i = 0, i < 10
	print i
end
`)
	ops := opcodesOf(t, fn)
	sawLoop := false
	for _, op := range ops {
		if op == opcode.Loop {
			sawLoop = true
		}
	}
	if !sawLoop {
		t.Fatalf("expected a LOOP opcode in %v", ops)
	}
}

func TestIterateStatementCompiles(t *testing.T) {
	compileOK(t, `
iterate k, v in {a: 1, b: 2}
	print k
	print v
end
`)
}

func TestBreakAndContinueInsideWhile(t *testing.T) {
	compileOK(t, `
while true
	if true
		break
	end
	continue
end
`)
}

func TestBreakOutsideLoopIsError(t *testing.T) {
	_, errs := Compile("break", "test", value.NewInternSet())
	if len(errs) == 0 {
		t.Fatalf("expected error for break outside loop")
	}
}

func TestBuiltinCallForms(t *testing.T) {
	compileOK(t, `
let a = [1, 2, 3]
push(a, 4)
pop(a)
insert(a, 0, 99)
delete({x: 1}, "x")
print len(a)
print type(a)
print copy(a)
print index(a, 2)
print int("3")
print float("3.5")
print string(3)
`)
}

// TestPeepholeEquivalence is spec.md §8 scenario 8: compiling and
// running a program with the peephole optimizer enabled must produce
// the same observable output as running it with the optimizer
// disabled, for a program that exercises every fusion added to
// peephole.go (chained pops, constant-negate folding, constant+local
// increments, two-local adds, and a for-loop's default increment).
func TestPeepholeEquivalence(t *testing.T) {
	source := `
let total = 0
let neg5 = -5
total = total + -neg5
for i = 0, i < 5
	let pair = i + i
	let shifted = pair + 1
	let negative = -shifted
	total = total + -negative
	begin
		let a = 1
		let b = 2
		let c = 3
	end
end
print total
`
	optimized := runForOutput(t, Compile, source)
	unoptimized := runForOutput(t, CompileUnoptimized, source)
	if optimized != unoptimized {
		t.Fatalf("peephole-enabled output %q != peephole-disabled output %q", optimized, unoptimized)
	}
}

func runForOutput(t *testing.T, compileFn func(string, string, *value.InternSet) (*value.Func, []*Error), source string) string {
	t.Helper()
	intern := value.NewInternSet()
	fn, errs := compileFn(source, "test", intern)
	if len(errs) > 0 {
		t.Fatalf("unexpected compile errors: %v", errs)
	}
	var out bytes.Buffer
	m := vm.New(intern)
	m.Stdout = &out
	if err := m.Run(fn); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	return out.String()
}
