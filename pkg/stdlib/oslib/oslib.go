// Package oslib registers the `os` native module (SPEC_FULL.md §13),
// grounded on original_source's hymn_os.c (os_env, os_clock) extended
// with the file primitives pkg/vm's teacher carried ungrounded in its
// own primitives.go (fileRead/fileWrite/fileExists/fileDelete) — moved
// here so they go through the host API like every other native binding
// instead of living as unexported *VM methods nothing ever called.
package oslib

import (
	"os"
	"time"

	"github.com/hymnlang/hymn/pkg/host"
	"github.com/hymnlang/hymn/pkg/value"
)

var startTime = time.Now()

// Register builds the `os` table and installs it as a global.
func Register(h *host.Host) {
	table := h.NewTable()

	h.RegisterMethod(table.Tab, "env", osEnv(h))
	h.RegisterMethod(table.Tab, "clock", osClock(h))
	h.RegisterMethod(table.Tab, "args", osArgs(h))
	h.RegisterMethod(table.Tab, "readFile", osReadFile(h))
	h.RegisterMethod(table.Tab, "writeFile", osWriteFile(h))
	h.RegisterMethod(table.Tab, "exists", osExists(h))
	h.RegisterMethod(table.Tab, "remove", osRemove(h))

	h.RegisterGlobal("os", table)
}

func argString(call *value.NativeCall, i int) (string, bool) {
	if i >= len(call.Args) || call.Args[i].Kind != value.KindString {
		return "", false
	}
	return string(call.Args[i].Str.Bytes), true
}

// osEnv mirrors hymn_os.c's os_env: missing variable returns None, not
// an exception.
func osEnv(h *host.Host) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		name, ok := argString(call, 0)
		if !ok {
			return value.None, nil
		}
		v, ok := os.LookupEnv(name)
		if !ok {
			return value.None, nil
		}
		return h.NewString(v), nil
	}
}

// osClock mirrors hymn_os.c's os_clock: seconds elapsed since process
// start, as a float.
func osClock(h *host.Host) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		return value.Float(time.Since(startTime).Seconds()), nil
	}
}

// osArgs exposes os.Args[1:] (everything after the script path) as an
// array of strings, for scripts that want their own CLI arguments.
func osArgs(h *host.Host) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		arr := h.NewArray()
		for _, a := range os.Args[1:] {
			arr.Arr.Push(h.NewString(a))
		}
		return arr, nil
	}
}

func osReadFile(h *host.Host) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		path, ok := argString(call, 0)
		if !ok {
			return value.Value{}, h.RaiseString("expected a file path string")
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return value.Value{}, h.RaiseString(err.Error())
		}
		return h.NewString(string(content)), nil
	}
}

func osWriteFile(h *host.Host) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		path, ok := argString(call, 0)
		content, ok2 := argString(call, 1)
		if !ok || !ok2 {
			return value.Value{}, h.RaiseString("expected a path and contents, both strings")
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return value.Value{}, h.RaiseString(err.Error())
		}
		return value.None, nil
	}
}

func osExists(h *host.Host) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		path, ok := argString(call, 0)
		if !ok {
			return value.Bool(false), nil
		}
		_, err := os.Stat(path)
		return value.Bool(err == nil), nil
	}
}

func osRemove(h *host.Host) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		path, ok := argString(call, 0)
		if !ok {
			return value.Value{}, h.RaiseString("expected a file path string")
		}
		if err := os.Remove(path); err != nil {
			return value.Value{}, h.RaiseString(err.Error())
		}
		return value.None, nil
	}
}
