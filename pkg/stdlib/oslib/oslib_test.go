package oslib_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hymnlang/hymn/internal/diagnostics"
	"github.com/hymnlang/hymn/pkg/compiler"
	"github.com/hymnlang/hymn/pkg/host"
	"github.com/hymnlang/hymn/pkg/stdlib/oslib"
	"github.com/hymnlang/hymn/pkg/value"
	"github.com/hymnlang/hymn/pkg/vm"
)

func run(t *testing.T, source string) (string, error) {
	t.Helper()
	intern := value.NewInternSet()
	m := vm.New(intern)
	h := host.New(m, intern, diagnostics.Discard)
	oslib.Register(h)

	fn, errs := compiler.Compile(source, "test", intern)
	require.Empty(t, errs)

	var out bytes.Buffer
	m.Stdout = &out
	err := m.Run(fn)
	return out.String(), err
}

func TestEnvMissingIsNone(t *testing.T) {
	out, err := run(t, `print(os.env("HYMN_DEFINITELY_UNSET_VAR"))`)
	require.NoError(t, err)
	require.Equal(t, "none", strings.TrimSpace(out))
}

func TestEnvPresent(t *testing.T) {
	t.Setenv("HYMN_TEST_VAR", "hello")
	out, err := run(t, `print(os.env("HYMN_TEST_VAR"))`)
	require.NoError(t, err)
	require.Equal(t, "hello", strings.TrimSpace(out))
}

func TestClockIsNonNegative(t *testing.T) {
	out, err := run(t, `print(os.clock() >= 0.0)`)
	require.NoError(t, err)
	require.Equal(t, "true", strings.TrimSpace(out))
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "greeting.txt")
	escaped := strings.ReplaceAll(path, `\`, `\\`)
	out, err := run(t, `
os.writeFile("`+escaped+`", "hi there")
print(os.readFile("`+escaped+`"))
`)
	require.NoError(t, err)
	require.Equal(t, "hi there", strings.TrimSpace(out))
}

func TestExistsAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	escaped := strings.ReplaceAll(path, `\`, `\\`)
	out, err := run(t, `
print(os.exists("`+escaped+`"))
os.remove("`+escaped+`")
print(os.exists("`+escaped+`"))
`)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, []string{"true", "false"}, lines)
}
