// Package host implements Hymn's host extension API (spec.md §4.6): the
// capabilities a stdlib binder or embedding application uses to register
// native functions and values into a VM before it runs user script, and
// to construct Hymn values and exceptions from Go code.
package host

import (
	"github.com/hymnlang/hymn/internal/diagnostics"
	"github.com/hymnlang/hymn/pkg/value"
)

// Globals is the narrow slice of *vm.VM the Host needs, mirroring
// pkg/module.Globals so this package doesn't import pkg/vm either.
type Globals interface {
	Global(name string) (value.Value, bool)
	SetGlobal(name string, v value.Value)
}

// Host wraps one VM's globals and intern set with the registration and
// construction helpers spec.md §4.6 names. Every pkg/stdlib binder takes
// a *Host rather than a *vm.VM directly, so the binder package never
// needs to import pkg/vm.
type Host struct {
	Globals Globals
	Intern  *value.InternSet
	Log     diagnostics.Logger
}

// New builds a Host over globals and intern. log may be nil, in which
// case diagnostics are discarded.
func New(globals Globals, intern *value.InternSet, log diagnostics.Logger) *Host {
	if log == nil {
		log = diagnostics.Discard
	}
	return &Host{Globals: globals, Intern: intern, Log: log}
}

// RegisterFunction installs fn as a native function under the global
// name (spec.md §4.6 "register a native function under a global name").
func (h *Host) RegisterFunction(name string, fn value.NativeFn) {
	nf := &value.NativeFunc{Name: name, Fn: fn}
	h.Globals.SetGlobal(name, value.Value{Kind: value.KindNativeFunc, Native: nf})
}

// RegisterMethod installs fn as a property of table under name (spec.md
// §4.6 "register a native function as a property of a given table").
// Used to build namespace tables like the `math`/`os`/`json` modules
// pkg/stdlib registers.
func (h *Host) RegisterMethod(table *value.Table, name string, fn value.NativeFn) {
	nf := &value.NativeFunc{Name: name, Fn: fn}
	table.Put(h.Intern.InternString(name), value.Value{Kind: value.KindNativeFunc, Native: nf})
}

// RegisterGlobal installs v (a table, array, string, or any other Value)
// as a global under name (spec.md §4.6 "register a table or other value
// as a global").
func (h *Host) RegisterGlobal(name string, v value.Value) {
	h.Globals.SetGlobal(name, v)
}

// Global reads a global by name, for binders that need to observe
// script-set configuration (spec.md §4.6 "read and set global names").
func (h *Host) Global(name string) (value.Value, bool) {
	return h.Globals.Global(name)
}

// NewArray creates a fresh, empty Array value with a zero refcount, the
// same convention pkg/vm's own COPY/literal opcodes follow: the call
// site that gives it a home (RegisterGlobal, a returned NativeFn result,
// Raise) is the one that references it.
func (h *Host) NewArray() value.Value {
	return value.Value{Kind: value.KindArray, Arr: value.NewArray()}
}

// NewTable creates a fresh, empty Table value with a zero refcount; see
// NewArray's note on ownership.
func (h *Host) NewTable() value.Value {
	return value.Value{Kind: value.KindTable, Tab: value.NewTable()}
}

// NewString interns s and returns it as a Value with a zero refcount
// (spec.md §4.6 "create new arrays/tables/strings"); see NewArray's note
// on ownership. A NativeFn returning this directly needs no extra step —
// pkg/vm's call dispatcher references a native function's result exactly
// once before pushing it, the same as any other opcode-produced value.
func (h *Host) NewString(s string) value.Value {
	return value.StringValue(h.Intern.InternString(s))
}

// InternString is the host-facing form of string interning (spec.md
// §4.6 "intern a string") for binders that only need the canonical *Str,
// not a ready-made Value.
func (h *Host) InternString(s string) *value.Str {
	return h.Intern.InternString(s)
}

// Raise constructs a catchable Hymn exception carrying v, for a native
// function to return as its error result (spec.md §4.6 "raise a typed
// exception value"): `return value.Value{}, host.Raise(v)`. Raise
// references v on the native function's behalf, establishing the single
// owned reference pkg/vm's unwinder expects to consume -- a fresh value
// off NewString/NewArray/NewTable, a value already owned elsewhere (in
// which case this is a second, legitimate owner), and a non-heap value
// are all valid arguments.
func (h *Host) Raise(v value.Value) error {
	value.Reference(v)
	return value.NewException(v)
}

// RaiseString is a convenience wrapper over Raise for the common case of
// throwing a plain error message.
func (h *Host) RaiseString(msg string) error {
	return h.Raise(h.NewString(msg))
}
