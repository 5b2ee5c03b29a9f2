// Package config parses cmd/hymn's command-line flags into a Config the
// CLI and VM both read, replacing the teacher's manual os.Args switch
// with pflag's GNU-style flag parsing.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Config holds everything cmd/hymn needs to run a script, dump its
// bytecode, or drop into the REPL.
type Config struct {
	// ScriptPath is the positional argument naming the .hm file to run,
	// or "" to start the REPL.
	ScriptPath string

	// Dump, when true, prints the compiled bytecode disassembly instead
	// of (or before, if Run is also set) executing it.
	Dump bool

	// Run forces execution even when Dump is set.
	Run bool

	// Debug enables verbose structured logging (module cache hits,
	// bytecode dumps routed through internal/diagnostics).
	Debug bool

	// SearchPaths are module search templates that, when given, replace
	// the default `__paths` global (spec.md §4.5), in the order given.
	SearchPaths []string
}

// Parse builds a Config from a command-line argument vector (normally
// os.Args[1:]). name is used in pflag's usage/error output.
func Parse(name string, args []string) (*Config, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	dump := fs.BoolP("dump", "d", false, "print compiled bytecode instead of running it")
	run := fs.Bool("run", false, "run the script even when --dump is set")
	debug := fs.BoolP("debug", "v", false, "enable verbose structured logging")
	searchPaths := fs.StringArrayP("path", "p", nil, "additional module search template (repeatable)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Dump:        *dump,
		Run:         *run,
		Debug:       *debug,
		SearchPaths: *searchPaths,
	}
	switch fs.NArg() {
	case 0:
	case 1:
		cfg.ScriptPath = fs.Arg(0)
	default:
		return nil, fmt.Errorf("expected at most one script path, got %d", fs.NArg())
	}
	return cfg, nil
}
