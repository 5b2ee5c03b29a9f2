// Package module implements Hymn's `use` statement: resolving an import
// path against the `__paths` search templates, compiling the winning
// candidate as a script-type module, and caching it in `__imports` so a
// module's top-level code runs at most once per VM (spec.md §4.5).
package module

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hymnlang/hymn/internal/diagnostics"
	"github.com/hymnlang/hymn/pkg/bytecode"
	"github.com/hymnlang/hymn/pkg/compiler"
	"github.com/hymnlang/hymn/pkg/opcode"
	"github.com/hymnlang/hymn/pkg/value"
)

// defaultPaths are the search templates installed into `__paths` the
// first time a Loader resolves an import, if the host hasn't already
// set the global itself (spec.md §4.5 step 2's default list).
var defaultPaths = []string{
	"<parent>/<path>.hm",
	"./<path>.hm",
	"./modules/<path>.hm",
}

// Globals is the narrow slice of *vm.VM that module resolution needs:
// reading and writing the `__paths`/`__imports` globals. pkg/vm.VM
// satisfies this without pkg/module importing pkg/vm for anything else,
// and it lets tests fake a host without spinning up a real VM.
type Globals interface {
	Global(name string) (value.Value, bool)
	SetGlobal(name string, v value.Value)
}

// Loader is the pkg/vm.ModuleLoader implementation wired up by the CLI
// and any other embedder. One Loader is scoped to one VM's globals.
type Loader struct {
	Globals Globals
	Intern  *value.InternSet
	Log     diagnostics.Logger

	// UseCompiledCache enables the `.hmc` fast path (SPEC_FULL §11): when
	// a sibling compiled file exists and isn't older than the source, it
	// is loaded directly instead of recompiling.
	UseCompiledCache bool

	// Natives holds built-in modules pkg/stdlib binders register under a
	// bare name (e.g. "math") so `use "math"` resolves to a pre-built
	// native table instead of searching for a `.hm` file on disk
	// (SPEC_FULL §13, mirroring original_source's hymn_libs.c dispatch).
	// Checked before the file search templates.
	Natives map[string]value.Value
}

// RegisterNative installs v as a built-in module resolvable by `use
// name`, without touching the filesystem.
func (l *Loader) RegisterNative(name string, v value.Value) {
	if l.Natives == nil {
		l.Natives = make(map[string]value.Value)
	}
	l.Natives[name] = v
}

// New builds a Loader over globals, logging through log (diagnostics.Discard
// if the caller doesn't want module-load tracing).
func New(globals Globals, intern *value.InternSet, log diagnostics.Logger) *Loader {
	if log == nil {
		log = diagnostics.Discard
	}
	return &Loader{Globals: globals, Intern: intern, Log: log}
}

// Resolve implements pkg/vm.ModuleLoader. fromScript is the path of the
// script whose `use` statement is resolving -- the nearest enclosing
// frame with a script path, per spec.md §4.5 step 1.
func (l *Loader) Resolve(path, fromScript string) (*value.Func, error) {
	imports := l.importsTable()

	if native, ok := l.Natives[path]; ok {
		key := "native:" + path
		_, cached := imports.GetByBytes([]byte(key))
		if !cached {
			l.Globals.SetGlobal(path, native)
			l.markImported(imports, key)
		}
		l.Log.ModuleLoad(key, cached)
		return noopModule(key), nil
	}

	parent := "."
	if fromScript != "" {
		parent = filepath.Dir(fromScript)
	}

	templates := l.searchTemplates()

	var tried []string
	for _, tmpl := range templates {
		candidate := strings.NewReplacer("<path>", path, "<parent>", parent).Replace(tmpl)
		abs, err := filepath.Abs(filepath.Clean(candidate))
		if err != nil {
			tried = append(tried, candidate)
			continue
		}

		if _, ok := imports.GetByBytes([]byte(abs)); ok {
			l.Log.ModuleLoad(abs, true)
			return noopModule(abs), nil
		}

		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			tried = append(tried, abs)
			continue
		}

		fn, err := l.load(abs)
		if err != nil {
			return nil, err
		}
		l.markImported(imports, abs)
		l.Log.ModuleLoad(abs, false)
		return fn, nil
	}

	return nil, fmt.Errorf("Could not find module `%s`. Tried: %s", path, strings.Join(tried, ", "))
}

// load compiles (or, with the compiled-cache fast path enabled,
// deserializes) the module source at abs into a script-type Function.
func (l *Loader) load(abs string) (*value.Func, error) {
	if l.UseCompiledCache {
		if fn, ok := l.loadCached(abs); ok {
			return fn, nil
		}
	}

	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("Could not read module `%s`: %w", abs, err)
	}
	fn, errs := compiler.Compile(string(src), abs, l.Intern)
	if len(errs) > 0 {
		return nil, fmt.Errorf("Error compiling module `%s`: %s", abs, errs[0].Error())
	}
	return fn, nil
}

func (l *Loader) loadCached(abs string) (*value.Func, bool) {
	cachePath := abs + "c"
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return nil, false
	}
	srcInfo, err := os.Stat(abs)
	if err != nil || cacheInfo.ModTime().Before(srcInfo.ModTime()) {
		return nil, false
	}
	f, err := os.Open(cachePath)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	fn, err := bytecode.LoadCompiled(f, l.Intern)
	if err != nil {
		return nil, false
	}
	return fn, true
}

// noopModule returns an already-loaded module's resolution: a trivial
// zero-arity script Function whose body does nothing, so the VM's `use`
// opcode can still push-call-run it uniformly (spec.md §4.5 step 2c:
// "the load is a no-op").
func noopModule(script string) *value.Func {
	s := script
	return value.NewFunc(nil, &s, 0, &value.ByteCode{
		Instructions: []byte{byte(opcode.None), byte(opcode.Return)},
		Lines:        []int{0, 0},
	})
}

func (l *Loader) searchTemplates() []string {
	v, ok := l.Globals.Global("__paths")
	if !ok || v.Kind != value.KindArray {
		arr := value.NewArray()
		for _, p := range defaultPaths {
			s := l.Intern.InternString(p)
			arr.Push(value.StringValue(s))
		}
		installed := value.Value{Kind: value.KindArray, Arr: arr}
		l.Globals.SetGlobal("__paths", installed)
		return defaultPaths
	}
	out := make([]string, 0, len(v.Arr.Items))
	for _, item := range v.Arr.Items {
		if item.Kind == value.KindString {
			out = append(out, string(item.Str.Bytes))
		}
	}
	return out
}

func (l *Loader) importsTable() *value.Table {
	v, ok := l.Globals.Global("__imports")
	if !ok || v.Kind != value.KindTable {
		t := value.NewTable()
		l.Globals.SetGlobal("__imports", value.Value{Kind: value.KindTable, Tab: t})
		return t
	}
	return v.Tab
}

func (l *Loader) markImported(imports *value.Table, abs string) {
	imports.Put(l.Intern.InternString(abs), value.Bool(true))
}
