// Package jsonlib registers the `json` native module (SPEC_FULL.md §13),
// grounded on original_source's hymn_json.c: `json.stringify` walks a
// Value tree the way json_save_recursive walks a HymnValue (objects
// serialize keys in sorted order, arrays recurse element by
// element); `json.parse` is the inverse, reusing encoding/json the same
// way pkg/vm's teacher primitives.go already did, rebuilt over the new
// Value model instead of the teacher's own Array/map types.
package jsonlib

import (
	"encoding/json"
	"fmt"

	"github.com/hymnlang/hymn/pkg/host"
	"github.com/hymnlang/hymn/pkg/value"
)

// Register builds the `json` table and installs it as a global.
func Register(h *host.Host) {
	table := h.NewTable()
	h.RegisterMethod(table.Tab, "stringify", jsonStringify(h))
	h.RegisterMethod(table.Tab, "parse", jsonParse(h))
	h.RegisterGlobal("json", table)
}

func jsonStringify(h *host.Host) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		if len(call.Args) < 1 {
			return value.Value{}, h.RaiseString("missing value")
		}
		return h.NewString(toJSONString(call.Args[0])), nil
	}
}

func toJSONString(v value.Value) string {
	switch v.Kind {
	case value.KindUndefined, value.KindNone:
		return "null"
	case value.KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case value.KindInt:
		return fmt.Sprintf("%d", v.I)
	case value.KindFloat:
		return fmt.Sprintf("%v", v.F)
	case value.KindString:
		b, _ := json.Marshal(string(v.Str.Bytes))
		return string(b)
	case value.KindArray:
		s := "["
		for i, item := range v.Arr.Items {
			if i != 0 {
				s += ", "
			}
			s += toJSONString(item)
		}
		return s + "]"
	case value.KindTable:
		s := "{"
		keys := v.Tab.Keys()
		for i, k := range keys {
			if i != 0 {
				s += ", "
			}
			item, _ := v.Tab.GetByBytes([]byte(k))
			kb, _ := json.Marshal(k)
			s += string(kb) + ": " + toJSONString(item)
		}
		return s + "}"
	default:
		return "null"
	}
}

func jsonParse(h *host.Host) value.NativeFn {
	return func(call *value.NativeCall) (value.Value, error) {
		if len(call.Args) < 1 || call.Args[0].Kind != value.KindString {
			return value.Value{}, h.RaiseString("expected a JSON string")
		}
		var decoded any
		if err := json.Unmarshal(call.Args[0].Str.Bytes, &decoded); err != nil {
			return value.Value{}, h.RaiseString("invalid JSON: " + err.Error())
		}
		return fromJSONValue(h, decoded), nil
	}
}

// fromJSONValue builds a fresh, zero-refcount Value tree from decoded
// JSON, referencing every nested element exactly once via Array.Push /
// Table.Put as it assembles each container -- the same "build owned,
// reference at the use site" discipline NewArray/NewTable document.
func fromJSONValue(h *host.Host, decoded any) value.Value {
	switch v := decoded.(type) {
	case nil:
		return value.None
	case bool:
		return value.Bool(v)
	case float64:
		if v == float64(int64(v)) {
			return value.Int(int64(v))
		}
		return value.Float(v)
	case string:
		return h.NewString(v)
	case []any:
		arr := h.NewArray()
		for _, item := range v {
			arr.Arr.Push(fromJSONValue(h, item))
		}
		return arr
	case map[string]any:
		tab := h.NewTable()
		for k, item := range v {
			tab.Tab.Put(h.InternString(k), fromJSONValue(h, item))
		}
		return tab
	default:
		return value.None
	}
}
