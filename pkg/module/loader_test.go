package module_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hymnlang/hymn/internal/diagnostics"
	"github.com/hymnlang/hymn/pkg/compiler"
	"github.com/hymnlang/hymn/pkg/module"
	"github.com/hymnlang/hymn/pkg/value"
	"github.com/hymnlang/hymn/pkg/vm"
)

func TestResolveLoadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	modPath := filepath.Join(dir, "greeting.hm")
	require.NoError(t, os.WriteFile(modPath, []byte(`print("hello from module")`), 0o644))

	intern := value.NewInternSet()
	m := vm.New(intern)
	loader := module.New(m, intern, diagnostics.Discard)
	m.Loader = loader

	scriptPath := filepath.Join(dir, "main.hm")
	fn, errs := compiler.Compile(`use "greeting"
use "greeting"`, scriptPath, intern)
	require.Empty(t, errs)

	require.NoError(t, m.Run(fn))

	imports, ok := m.Global("__imports")
	require.True(t, ok)
	require.Equal(t, value.KindTable, imports.Kind)
	require.Equal(t, 1, imports.Tab.Size())
}

func TestResolveMissingModuleListsTriedPaths(t *testing.T) {
	dir := t.TempDir()
	intern := value.NewInternSet()
	m := vm.New(intern)
	loader := module.New(m, intern, diagnostics.Discard)
	m.Loader = loader

	scriptPath := filepath.Join(dir, "main.hm")
	fn, errs := compiler.Compile(`use "does_not_exist"`, scriptPath, intern)
	require.Empty(t, errs)

	err := m.Run(fn)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does_not_exist")
}

func TestDefaultSearchPathsInstalledOnFirstUse(t *testing.T) {
	dir := t.TempDir()
	intern := value.NewInternSet()
	m := vm.New(intern)
	loader := module.New(m, intern, diagnostics.Discard)
	m.Loader = loader

	scriptPath := filepath.Join(dir, "main.hm")
	fn, errs := compiler.Compile(`use "nope"`, scriptPath, intern)
	require.Empty(t, errs)
	_ = m.Run(fn)

	paths, ok := m.Global("__paths")
	require.True(t, ok)
	require.Equal(t, value.KindArray, paths.Kind)
	require.Len(t, paths.Arr.Items, 3)
}
