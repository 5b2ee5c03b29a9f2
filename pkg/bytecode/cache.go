package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hymnlang/hymn/pkg/value"
)

// .hmc binary format, adapted from the teacher's .sg header/section
// layout (magic number, version, length-prefixed sections) onto Hymn's
// constant/instruction shape. A module's source loader (pkg/module)
// uses this as an optional fast path: when a sibling .hmc file exists
// and isn't older than its .hm source, it's loaded directly instead of
// recompiling (spec.md §1 out-of-scope "compile caching", supplemented
// from original_source's compile/run split).
const (
	magicNumber   uint32 = 0x48594d4e // "HYMN"
	formatVersion uint32 = 1
)

const (
	tagInt byte = iota
	tagFloat
	tagString
	tagNone
	tagBool
	tagFunc
)

// SaveCompiled serializes fn (and every function nested in its constant
// pool) to w in the .hmc format.
func SaveCompiled(fn *value.Func, w io.Writer) error {
	if err := writeU32(w, magicNumber); err != nil {
		return err
	}
	if err := writeU32(w, formatVersion); err != nil {
		return err
	}
	return writeFunc(w, fn)
}

// LoadCompiled deserializes a .hmc file written by SaveCompiled. Interned
// strings are re-interned against intern so pointer equality with
// already-loaded strings still holds.
func LoadCompiled(r io.Reader, intern *value.InternSet) (*value.Func, error) {
	magic, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if magic != magicNumber {
		return nil, fmt.Errorf("not a compiled hymn file")
	}
	version, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported compiled hymn format version %d", version)
	}
	return readFunc(r, intern)
}

func writeFunc(w io.Writer, fn *value.Func) error {
	if err := writeString(w, derefStr(fn.Name)); err != nil {
		return err
	}
	if err := writeBool(w, fn.Name == nil); err != nil {
		return err
	}
	if err := writeString(w, derefStr(fn.Script)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(fn.Arity)); err != nil {
		return err
	}
	if err := writeBytes(w, fn.Code.Instructions); err != nil {
		return err
	}
	if err := writeInts(w, fn.Code.Lines); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(fn.Code.Constants))); err != nil {
		return err
	}
	for _, c := range fn.Code.Constants {
		if err := writeValue(w, c); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(len(fn.Except))); err != nil {
		return err
	}
	for _, r := range fn.Except {
		if err := writeU32(w, uint32(r.StartIP)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(r.EndIP)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(r.LocalDepth)); err != nil {
			return err
		}
	}
	return nil
}

func readFunc(r io.Reader, intern *value.InternSet) (*value.Func, error) {
	nameStr, err := readString(r)
	if err != nil {
		return nil, err
	}
	isScript, err := readBool(r)
	if err != nil {
		return nil, err
	}
	scriptStr, err := readString(r)
	if err != nil {
		return nil, err
	}
	arity, err := readU32(r)
	if err != nil {
		return nil, err
	}
	instructions, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	lines, err := readInts(r)
	if err != nil {
		return nil, err
	}
	constCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	constants := make([]value.Value, constCount)
	for i := range constants {
		v, err := readValue(r, intern)
		if err != nil {
			return nil, err
		}
		constants[i] = v
	}
	exceptCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	except := make([]value.ExceptionRange, exceptCount)
	for i := range except {
		start, err := readU32(r)
		if err != nil {
			return nil, err
		}
		end, err := readU32(r)
		if err != nil {
			return nil, err
		}
		depth, err := readU32(r)
		if err != nil {
			return nil, err
		}
		except[i] = value.ExceptionRange{StartIP: int(start), EndIP: int(end), LocalDepth: int(depth)}
	}

	var name, script *string
	if !isScript {
		name = &nameStr
	}
	if scriptStr != "" {
		script = &scriptStr
	}
	fn := value.NewFunc(name, script, int(arity), &value.ByteCode{
		Instructions: instructions,
		Lines:        lines,
		Constants:    constants,
	})
	fn.Except = except
	return fn, nil
}

func writeValue(w io.Writer, v value.Value) error {
	switch v.Kind {
	case value.KindInt:
		if err := writeByte(w, tagInt); err != nil {
			return err
		}
		return writeU64(w, uint64(v.I))
	case value.KindFloat:
		if err := writeByte(w, tagFloat); err != nil {
			return err
		}
		return writeU64(w, math.Float64bits(v.F))
	case value.KindString:
		if err := writeByte(w, tagString); err != nil {
			return err
		}
		return writeBytes(w, v.Str.Bytes)
	case value.KindNone:
		return writeByte(w, tagNone)
	case value.KindBool:
		if err := writeByte(w, tagBool); err != nil {
			return err
		}
		return writeBool(w, v.B)
	case value.KindFunc:
		if err := writeByte(w, tagFunc); err != nil {
			return err
		}
		return writeFunc(w, v.Fn)
	default:
		return fmt.Errorf("cannot serialize constant of kind %s", v.Kind)
	}
}

func readValue(r io.Reader, intern *value.InternSet) (value.Value, error) {
	tag, err := readByte(r)
	if err != nil {
		return value.Value{}, err
	}
	switch tag {
	case tagInt:
		i, err := readU64(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(i)), nil
	case tagFloat:
		i, err := readU64(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Float(math.Float64frombits(i)), nil
	case tagString:
		b, err := readBytes(r)
		if err != nil {
			return value.Value{}, err
		}
		s := intern.Intern(b)
		v := value.StringValue(s)
		value.Reference(v)
		return v, nil
	case tagNone:
		return value.None, nil
	case tagBool:
		b, err := readBool(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(b), nil
	case tagFunc:
		fn, err := readFunc(r, intern)
		if err != nil {
			return value.Value{}, err
		}
		v := value.Value{Kind: value.KindFunc, Fn: fn}
		value.Reference(v)
		return v, nil
	default:
		return value.Value{}, fmt.Errorf("unknown constant tag %d", tag)
	}
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func writeBool(w io.Writer, b bool) error {
	if b {
		return writeByte(w, 1)
	}
	return writeByte(w, 0)
}

func readBool(r io.Reader) (bool, error) {
	b, err := readByte(r)
	return b != 0, err
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeInts(w io.Writer, ints []int) error {
	if err := writeU32(w, uint32(len(ints))); err != nil {
		return err
	}
	for _, v := range ints {
		if err := writeU32(w, uint32(v)); err != nil {
			return err
		}
	}
	return nil
}

func readInts(r io.Reader) ([]int, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	ints := make([]int, n)
	for i := range ints {
		v, err := readU32(r)
		if err != nil {
			return nil, err
		}
		ints[i] = int(v)
	}
	return ints, nil
}
