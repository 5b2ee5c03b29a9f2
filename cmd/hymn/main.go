// Command hymn is the language's CLI: run a script, dump its compiled
// bytecode, or drop into an interactive REPL when no script path is
// given. The three-mode shape (run / dump / REPL) follows the
// teacher's cmd/smog, generalized from smog's subcommand dispatch to
// the flag-driven interface internal/config exposes (spec.md §6's CLI
// is file-path-plus-`-d`-flag only; the REPL and `.hmc` compile-cache
// flow are SPEC_FULL.md §11/§14 additions).
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/hymnlang/hymn/internal/config"
	"github.com/hymnlang/hymn/internal/diagnostics"
	"github.com/hymnlang/hymn/pkg/bytecode"
	"github.com/hymnlang/hymn/pkg/compiler"
	"github.com/hymnlang/hymn/pkg/host"
	"github.com/hymnlang/hymn/pkg/module"
	"github.com/hymnlang/hymn/pkg/stdlib/jsonlib"
	"github.com/hymnlang/hymn/pkg/stdlib/mathlib"
	"github.com/hymnlang/hymn/pkg/stdlib/oslib"
	"github.com/hymnlang/hymn/pkg/value"
	"github.com/hymnlang/hymn/pkg/vm"
)

const historyFile = ".hymn_history"

func main() {
	cfg, err := config.Parse("hymn", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.ScriptPath == "" {
		runREPL(cfg)
		return
	}

	os.Exit(runScript(cfg))
}

// newVM wires one VM with its intern set, module loader, and the
// standard-library native modules every script gets for free (spec.md
// §4.6's host API feeding SPEC_FULL.md §13's binders).
func newVM(cfg *config.Config) (*vm.VM, *value.InternSet) {
	intern := value.NewInternSet()
	m := vm.New(intern)

	log := diagnostics.Discard
	if cfg.Debug {
		log = diagnostics.NewStderr(cfg.Debug)
	}

	loader := module.New(m, intern, log)
	loader.UseCompiledCache = true
	if len(cfg.SearchPaths) > 0 {
		arr := value.NewArray()
		for _, p := range cfg.SearchPaths {
			arr.Push(value.StringValue(intern.InternString(p)))
		}
		m.SetGlobal("__paths", value.Value{Kind: value.KindArray, Arr: arr})
	}

	h := host.New(m, intern, log)
	mathlib.Register(h)
	oslib.Register(h)
	jsonlib.Register(h)
	registerNatives(loader, m)

	m.Loader = loader
	return m, intern
}

// registerNatives mirrors each stdlib binder's global into the
// loader's native-module table, so both `math.sqrt(...)` (the global is
// always present) and `use "math"` (explicit, matching original_source's
// hymn_libs.c dispatch) work.
func registerNatives(loader *module.Loader, m *vm.VM) {
	for _, name := range []string{"math", "os", "json"} {
		if v, ok := m.Global(name); ok {
			loader.RegisterNative(name, v)
		}
	}
}

func runScript(cfg *config.Config) int {
	m, intern := newVM(cfg)
	m.Stdout = os.Stdout

	src, err := os.ReadFile(cfg.ScriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not read `%s`: %v\n", cfg.ScriptPath, err)
		return 1
	}

	fn, errs := compiler.Compile(string(src), cfg.ScriptPath, intern)
	if len(errs) > 0 {
		fmt.Fprintln(os.Stderr, errs[0].Error())
		return 1
	}

	if cfg.Dump {
		fmt.Println(bytecode.Disassemble(fn))
		if !cfg.Run {
			return 0
		}
	}

	if err := m.Run(fn); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// runREPL drives an interactive session over one persistent VM: each
// line compiles and runs immediately, so `let` bindings and `use`d
// modules from earlier lines stay live (spec.md has no REPL of its
// own; this follows cmd/smog's runREPL/evalREPL split, swapping
// bufio.Scanner for github.com/peterh/liner's line editing and history).
func runREPL(cfg *config.Config) {
	m, intern := newVM(cfg)
	m.Stdout = os.Stdout

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	fmt.Println("hymn REPL -- Ctrl-D or :quit to exit")

	for {
		input, err := line.Prompt("hymn> ")
		if err != nil {
			break
		}
		trimmed := strings.TrimSpace(input)
		if trimmed == ":quit" || trimmed == ":exit" {
			break
		}
		if trimmed == "" {
			continue
		}
		line.AppendHistory(input)
		evalREPL(m, intern, trimmed)
	}

	if f, err := os.Create(historyFile); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
}

func evalREPL(m *vm.VM, intern *value.InternSet, input string) {
	fn, errs := compiler.Compile(input, "repl", intern)
	if len(errs) > 0 {
		fmt.Fprintln(os.Stderr, errs[0].Error())
		return
	}
	if err := m.Run(fn); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
