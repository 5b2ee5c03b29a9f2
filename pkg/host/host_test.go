package host_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hymnlang/hymn/internal/diagnostics"
	"github.com/hymnlang/hymn/pkg/compiler"
	"github.com/hymnlang/hymn/pkg/host"
	"github.com/hymnlang/hymn/pkg/value"
	"github.com/hymnlang/hymn/pkg/vm"
)

func run(t *testing.T, source string, register func(h *host.Host)) (string, error) {
	t.Helper()
	intern := value.NewInternSet()
	m := vm.New(intern)
	h := host.New(m, intern, diagnostics.Discard)
	register(h)

	fn, errs := compiler.Compile(source, "test", intern)
	require.Empty(t, errs)

	var out bytes.Buffer
	m.Stdout = &out
	err := m.Run(fn)
	return out.String(), err
}

func TestRegisterFunctionCallableFromScript(t *testing.T) {
	out, err := run(t, `print(double(21))`, func(h *host.Host) {
		h.RegisterFunction("double", func(call *value.NativeCall) (value.Value, error) {
			return value.Int(call.Args[0].I * 2), nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, "42", strings.TrimSpace(out))
}

func TestRegisterMethodOnTable(t *testing.T) {
	out, err := run(t, `print(mathish.square(5))`, func(h *host.Host) {
		table := h.NewTable()
		h.RegisterMethod(table.Tab, "square", func(call *value.NativeCall) (value.Value, error) {
			n := call.Args[0].I
			return value.Int(n * n), nil
		})
		h.RegisterGlobal("mathish", table)
	})
	require.NoError(t, err)
	require.Equal(t, "25", strings.TrimSpace(out))
}

func TestRaiseIsCatchable(t *testing.T) {
	out, err := run(t, `
try
	explode()
except e
	print(e)
end
`, func(h *host.Host) {
		h.RegisterFunction("explode", func(call *value.NativeCall) (value.Value, error) {
			return value.Value{}, h.RaiseString("kaboom")
		})
	})
	require.NoError(t, err)
	require.Equal(t, "kaboom", strings.TrimSpace(out))
}

func TestRaiseUncaughtBecomesError(t *testing.T) {
	_, err := run(t, `explode()`, func(h *host.Host) {
		h.RegisterFunction("explode", func(call *value.NativeCall) (value.Value, error) {
			return value.Value{}, h.RaiseString("kaboom")
		})
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "kaboom")
}

func TestNewStringIsUsableAsReturnValue(t *testing.T) {
	out, err := run(t, `print(greeting())`, func(h *host.Host) {
		h.RegisterFunction("greeting", func(call *value.NativeCall) (value.Value, error) {
			return h.NewString("hello"), nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, "hello", strings.TrimSpace(out))
}
