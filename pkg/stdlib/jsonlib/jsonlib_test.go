package jsonlib_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hymnlang/hymn/internal/diagnostics"
	"github.com/hymnlang/hymn/pkg/compiler"
	"github.com/hymnlang/hymn/pkg/host"
	"github.com/hymnlang/hymn/pkg/stdlib/jsonlib"
	"github.com/hymnlang/hymn/pkg/value"
	"github.com/hymnlang/hymn/pkg/vm"
)

func run(t *testing.T, source string) (string, error) {
	t.Helper()
	intern := value.NewInternSet()
	m := vm.New(intern)
	h := host.New(m, intern, diagnostics.Discard)
	jsonlib.Register(h)

	fn, errs := compiler.Compile(source, "test", intern)
	require.Empty(t, errs)

	var out bytes.Buffer
	m.Stdout = &out
	err := m.Run(fn)
	return out.String(), err
}

func TestStringifyPrimitives(t *testing.T) {
	out, err := run(t, `print(json.stringify(42))`)
	require.NoError(t, err)
	require.Equal(t, "42", strings.TrimSpace(out))
}

func TestStringifyArray(t *testing.T) {
	out, err := run(t, `print(json.stringify([1, 2, 3]))`)
	require.NoError(t, err)
	require.Equal(t, "[1, 2, 3]", strings.TrimSpace(out))
}

func TestStringifyTableSortsKeys(t *testing.T) {
	out, err := run(t, `print(json.stringify({ b: 2, a: 1 }))`)
	require.NoError(t, err)
	require.Equal(t, `{"a": 1, "b": 2}`, strings.TrimSpace(out))
}

func TestParseRoundTripsArray(t *testing.T) {
	out, err := run(t, `
let decoded = json.parse("[1, 2, 3]")
print(decoded[0] + decoded[1] + decoded[2])
`)
	require.NoError(t, err)
	require.Equal(t, "6", strings.TrimSpace(out))
}

func TestParseRoundTripsObject(t *testing.T) {
	out, err := run(t, `
let decoded = json.parse("{\"name\": \"hymn\"}")
print(decoded.name)
`)
	require.NoError(t, err)
	require.Equal(t, "hymn", strings.TrimSpace(out))
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := run(t, `json.parse("not json")`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid JSON")
}
