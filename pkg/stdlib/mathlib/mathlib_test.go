package mathlib_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hymnlang/hymn/internal/diagnostics"
	"github.com/hymnlang/hymn/pkg/compiler"
	"github.com/hymnlang/hymn/pkg/host"
	"github.com/hymnlang/hymn/pkg/stdlib/mathlib"
	"github.com/hymnlang/hymn/pkg/value"
	"github.com/hymnlang/hymn/pkg/vm"
)

func run(t *testing.T, source string) (string, error) {
	t.Helper()
	intern := value.NewInternSet()
	m := vm.New(intern)
	h := host.New(m, intern, diagnostics.Discard)
	mathlib.Register(h)

	fn, errs := compiler.Compile(source, "test", intern)
	require.Empty(t, errs)

	var out bytes.Buffer
	m.Stdout = &out
	err := m.Run(fn)
	return out.String(), err
}

func TestSqrt(t *testing.T) {
	out, err := run(t, `print(math.sqrt(16.0))`)
	require.NoError(t, err)
	require.Equal(t, "4.0", strings.TrimSpace(out))
}

func TestMinMaxPreserveKind(t *testing.T) {
	out, err := run(t, `
print(math.min(3, 7))
print(math.max(3, 7))
`)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, []string{"3", "7"}, lines)
}

func TestAbsPreservesInt(t *testing.T) {
	out, err := run(t, `print(math.abs(-5))`)
	require.NoError(t, err)
	require.Equal(t, "5", strings.TrimSpace(out))
}

func TestPIConstant(t *testing.T) {
	out, err := run(t, `print(PI > 3.14 and PI < 3.15)`)
	require.NoError(t, err)
	require.Equal(t, "true", strings.TrimSpace(out))
}

func TestAbsRejectsNonNumber(t *testing.T) {
	_, err := run(t, `math.abs("nope")`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be a number")
}
