package bytecode_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hymnlang/hymn/pkg/bytecode"
	"github.com/hymnlang/hymn/pkg/compiler"
	"github.com/hymnlang/hymn/pkg/value"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	intern := value.NewInternSet()
	fn, errs := compiler.Compile(`
function add(a, b)
	return a + b
end
print(add(1, 2.5))
`, "test", intern)
	require.Empty(t, errs)

	var buf bytes.Buffer
	require.NoError(t, bytecode.SaveCompiled(fn, &buf))

	loaded, err := bytecode.LoadCompiled(&buf, value.NewInternSet())
	require.NoError(t, err)
	require.Equal(t, fn.Arity, loaded.Arity)
	require.Equal(t, fn.Code.Instructions, loaded.Code.Instructions)
	require.Len(t, loaded.Code.Constants, len(fn.Code.Constants))
}

func TestLoadCompiledRejectsBadMagic(t *testing.T) {
	_, err := bytecode.LoadCompiled(strings.NewReader("not a hmc file"), value.NewInternSet())
	require.Error(t, err)
}

func TestDisassembleListsOpcodes(t *testing.T) {
	intern := value.NewInternSet()
	fn, errs := compiler.Compile(`print(1 + 2)`, "test", intern)
	require.Empty(t, errs)

	out := bytecode.Disassemble(fn)
	require.Contains(t, out, "== <script> ==")
	require.Contains(t, out, "CONSTANT")
	require.Contains(t, out, "INCREMENT")
	require.Contains(t, out, "PRINT")
}
