package vm_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hymnlang/hymn/pkg/compiler"
	"github.com/hymnlang/hymn/pkg/value"
	"github.com/hymnlang/hymn/pkg/vm"
)

func run(t *testing.T, source string) (*vm.VM, error) {
	t.Helper()
	intern := value.NewInternSet()
	fn, errs := compiler.Compile(source, "test", intern)
	if len(errs) > 0 {
		t.Fatalf("compile error: %v", errs[0])
	}
	m := vm.New(intern)
	var out bytes.Buffer
	m.Stdout = &out
	err := m.Run(fn)
	return m, err
}

func runOutput(t *testing.T, source string) string {
	t.Helper()
	intern := value.NewInternSet()
	fn, errs := compiler.Compile(source, "test", intern)
	if len(errs) > 0 {
		t.Fatalf("compile error: %v", errs[0])
	}
	m := vm.New(intern)
	var out bytes.Buffer
	m.Stdout = &out
	if err := m.Run(fn); err != nil {
		t.Fatalf("run error: %v", err)
	}
	return out.String()
}

func TestArithmetic(t *testing.T) {
	out := runOutput(t, `print(1 + 2 * 3)`)
	if strings.TrimSpace(out) != "7" {
		t.Errorf("got %q", out)
	}
}

func TestIntFloatPromotion(t *testing.T) {
	out := runOutput(t, `print(5 / 2)
print(4 / 2)`)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "2.5" || lines[1] != "2" {
		t.Errorf("got %v", lines)
	}
}

func TestStringConcat(t *testing.T) {
	out := runOutput(t, `print("foo" + "bar")`)
	if strings.TrimSpace(out) != "foobar" {
		t.Errorf("got %q", out)
	}
}

func TestLocalsAndLoop(t *testing.T) {
	out := runOutput(t, `
let total = 0
let i = 0
while i < 5
	total = total + i
	i = i + 1
end
print(total)
`)
	if strings.TrimSpace(out) != "10" {
		t.Errorf("got %q", out)
	}
}

func TestFunctionCallAndReturn(t *testing.T) {
	out := runOutput(t, `
function add(a, b)
	return a + b
end
print(add(3, 4))
`)
	if strings.TrimSpace(out) != "7" {
		t.Errorf("got %q", out)
	}
}

func TestRecursion(t *testing.T) {
	out := runOutput(t, `
function fib(n)
	if n < 2
		return n
	end
	return fib(n - 1) + fib(n - 2)
end
print(fib(10))
`)
	if strings.TrimSpace(out) != "55" {
		t.Errorf("got %q", out)
	}
}

func TestTailRecursionDoesNotOverflow(t *testing.T) {
	out := runOutput(t, `
function count(n, acc)
	if n == 0
		return acc
	end
	return count(n - 1, acc + 1)
end
print(count(100000, 0))
`)
	if strings.TrimSpace(out) != "100000" {
		t.Errorf("got %q", out)
	}
}

func TestArrayLiteralAndIndex(t *testing.T) {
	out := runOutput(t, `
let a = [1, 2, 3]
print(a[1])
print(len(a))
`)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "2" || lines[1] != "3" {
		t.Errorf("got %v", lines)
	}
}

func TestTableLiteralAndProperty(t *testing.T) {
	out := runOutput(t, `
let t = {a: 1, b: 2}
print(t.a)
t.c = 3
print(t["c"])
`)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "1" || lines[1] != "3" {
		t.Errorf("got %v", lines)
	}
}

func TestPushPopInsertDelete(t *testing.T) {
	out := runOutput(t, `
let a = [1, 2]
push(a, 3)
print(a)
print(pop(a))
insert(a, 0, 0)
print(a)
print(delete(a, 1))
print(a)
`)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{"[1, 2, 3]", "3", "[0, 1, 2]", "1", "[0, 2]"}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d: got %q want %q", i, lines[i], w)
		}
	}
}

func TestTryExcept(t *testing.T) {
	out := runOutput(t, `
try
	throw "boom"
except e
	print(e)
end
print("after")
`)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "boom" || lines[1] != "after" {
		t.Errorf("got %v", lines)
	}
}

func TestUncaughtThrowIsError(t *testing.T) {
	_, err := run(t, `throw "bang"`)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "bang") {
		t.Errorf("got %q", err.Error())
	}
}

func TestUncaughtThrowHasNoStackTrace(t *testing.T) {
	// spec.md §7: a user `throw expr` is thrown as-is, with no
	// automatic stack trace appended.
	_, err := run(t, `
function boom()
	throw "bang"
end
boom()
`)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "\n  at ") {
		t.Errorf("expected no stack trace on a user throw, got %q", err.Error())
	}
}

func TestUncaughtNativeExceptionHasStackTrace(t *testing.T) {
	// spec.md §7: runtime errors constructed by the VM carry an
	// appended "at <func> <script>:<row>" stack trace. A native
	// function raising via host.Raise is exactly this case (its
	// result is promoted to a RuntimeError by nativeError/uncaught),
	// unlike a script-level `throw` (see TestUncaughtThrowHasNoStackTrace).
	intern := value.NewInternSet()
	fn, errs := compiler.Compile(`
function wrapper()
	explode()
end
wrapper()
`, "test", intern)
	if len(errs) > 0 {
		t.Fatalf("compile error: %v", errs[0])
	}
	m := vm.New(intern)
	var out bytes.Buffer
	m.Stdout = &out
	m.SetGlobal("explode", value.Value{Kind: value.KindNativeFunc, Native: &value.NativeFunc{
		Name: "explode",
		Fn: func(call *value.NativeCall) (value.Value, error) {
			return value.Value{}, value.NewException(value.StringValue(intern.InternString("kaboom")))
		},
	}})
	err := m.Run(fn)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("expected message to contain %q, got %q", "kaboom", err.Error())
	}
	if !strings.Contains(err.Error(), "\n  at wrapper test:") {
		t.Errorf("expected a stack trace frame for wrapper, got %q", err.Error())
	}
}

func TestArityMismatchIsCatchable(t *testing.T) {
	out := runOutput(t, `
function add(a, b)
	return a + b
end
try
	add(1)
except e
	print(e)
end
`)
	if !strings.Contains(out, "Expected 2 argument") {
		t.Errorf("got %q", out)
	}
}

func TestTypeCoercion(t *testing.T) {
	out := runOutput(t, `
print(int("42"))
print(float("3.5"))
print(string(42))
print(type([1]))
`)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{"42", "3.5", "42", "Array"}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d: got %q want %q", i, lines[i], w)
		}
	}
}

func TestCopyIsIndependent(t *testing.T) {
	out := runOutput(t, `
let a = [1, 2]
let b = copy(a)
push(b, 3)
print(a)
print(b)
`)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "[1, 2]" || lines[1] != "[1, 2, 3]" {
		t.Errorf("got %v", lines)
	}
}

func TestGlobalAccessFromHost(t *testing.T) {
	m, err := run(t, `let answer = 42`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	v, ok := m.Global("answer")
	if !ok || v.Kind != value.KindInt || v.I != 42 {
		t.Errorf("got %v, %v", v, ok)
	}
}

func TestNativeFunctionCall(t *testing.T) {
	intern := value.NewInternSet()
	fn, errs := compiler.Compile(`print(double(21))`, "test", intern)
	if len(errs) > 0 {
		t.Fatalf("compile error: %v", errs[0])
	}
	m := vm.New(intern)
	var out bytes.Buffer
	m.Stdout = &out
	m.SetGlobal("double", value.Value{Kind: value.KindNativeFunc, Native: &value.NativeFunc{
		Name: "double",
		Fn: func(call *value.NativeCall) (value.Value, error) {
			return value.Int(call.Args[0].I * 2), nil
		},
	}})
	if err := m.Run(fn); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if strings.TrimSpace(out.String()) != "42" {
		t.Errorf("got %q", out.String())
	}
}
