// Package mathlib registers the `math` native module (SPEC_FULL.md §13),
// grounded directly on original_source's hymn_math.c: the same function
// names, the same int-or-float coercion to float64, the same
// two-argument min/max that return whichever argument "wins", keeping
// its type, rather than always producing a float. pow and atan2 always
// return a float.
package mathlib

import (
	"math"

	"github.com/hymnlang/hymn/pkg/host"
	"github.com/hymnlang/hymn/pkg/value"
)

// PI matches hymn_math.c's #define PI rather than Go's math.Pi, so a
// script reading math.PI sees the exact constant the source shipped.
const PI = 3.14159265358979323846

// Register builds the `math` table and installs it as a global under
// that name, plus the top-level PI constant (hymn_math.c registers PI
// as a bare global, not math.PI).
func Register(h *host.Host) {
	table := h.NewTable()

	unary := map[string]func(float64) float64{
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"sin":   math.Sin,
		"cos":   math.Cos,
		"tan":   math.Tan,
		"asin":  math.Asin,
		"acos":  math.Acos,
		"sinh":  math.Sinh,
		"cosh":  math.Cosh,
		"atan":  math.Atan,
		"sqrt":  math.Sqrt,
		"log":   math.Log,
		"log2":  math.Log2,
		"log10": math.Log10,
	}
	for name, fn := range unary {
		fn := fn
		h.RegisterMethod(table.Tab, name, mathUnary(h, fn))
	}

	h.RegisterMethod(table.Tab, "abs", mathAbs(h))
	h.RegisterMethod(table.Tab, "min", mathMinMax(h, func(a, b float64) bool { return a < b }))
	h.RegisterMethod(table.Tab, "max", mathMinMax(h, func(a, b float64) bool { return a > b }))
	h.RegisterMethod(table.Tab, "pow", mathBinary(h, math.Pow))
	h.RegisterMethod(table.Tab, "atan2", mathBinary(h, math.Atan2))

	h.RegisterGlobal("math", table)
	h.RegisterGlobal("PI", value.Float(PI))
}

func asFloat(v value.Value) (float64, bool) {
	switch v.Kind {
	case value.KindInt:
		return float64(v.I), true
	case value.KindFloat:
		return v.F, true
	default:
		return 0, false
	}
}

func mathUnary(h *host.Host, fn func(float64) float64) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		if len(call.Args) < 1 {
			return value.Value{}, h.RaiseString("missing number")
		}
		n, ok := asFloat(call.Args[0])
		if !ok {
			return value.Value{}, h.RaiseString("argument must be a number")
		}
		return value.Float(fn(n)), nil
	}
}

func mathBinary(h *host.Host, fn func(a, b float64) float64) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		if len(call.Args) < 2 {
			return value.Value{}, h.RaiseString("missing numbers")
		}
		a, aok := asFloat(call.Args[0])
		b, bok := asFloat(call.Args[1])
		if !aok || !bok {
			return value.Value{}, h.RaiseString("arguments must be numbers")
		}
		return value.Float(fn(a, b)), nil
	}
}

func mathAbs(h *host.Host) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		if len(call.Args) < 1 {
			return value.Value{}, h.RaiseString("missing number")
		}
		v := call.Args[0]
		switch v.Kind {
		case value.KindInt:
			if v.I < 0 {
				return value.Int(-v.I), nil
			}
			return v, nil
		case value.KindFloat:
			if v.F < 0 {
				return value.Float(-v.F), nil
			}
			return v, nil
		default:
			return value.Value{}, h.RaiseString("argument must be a number")
		}
	}
}

// mathMinMax returns whichever of the two arguments wins according to
// wins, preserving the winner's original Kind (Int stays Int) exactly
// as hymn_math.c's math_min/math_max do, instead of coercing both to
// float.
func mathMinMax(h *host.Host, wins func(a, b float64) bool) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		if len(call.Args) < 2 {
			return value.Value{}, h.RaiseString("missing numbers")
		}
		a, aok := asFloat(call.Args[0])
		b, bok := asFloat(call.Args[1])
		if !aok || !bok {
			return value.Value{}, h.RaiseString("arguments must be numbers")
		}
		if wins(a, b) {
			return call.Args[0], nil
		}
		return call.Args[1], nil
	}
}
