// Package bytecode provides tooling built on top of a compiled
// pkg/value.Func: a human-readable disassembler and a binary .hmc
// compiled-cache format, both adapted from the teacher's original
// bytecode-dump/encode tradition onto Hymn's stack-machine opcode set.
package bytecode

import (
	"fmt"
	"strings"

	"github.com/hymnlang/hymn/pkg/opcode"
	"github.com/hymnlang/hymn/pkg/value"
)

// Disassemble renders fn's instruction stream as readable mnemonics, one
// per line, with byte offset and source line number, recursing into any
// Func held in the constant pool (nested function bodies).
func Disassemble(fn *value.Func) string {
	var b strings.Builder
	disassembleInto(&b, fn, name(fn))
	return b.String()
}

func name(fn *value.Func) string {
	if fn.Name != nil {
		return *fn.Name
	}
	return "<script>"
}

func disassembleInto(b *strings.Builder, fn *value.Func, label string) {
	fmt.Fprintf(b, "== %s ==\n", label)
	code := fn.Code
	ip := 0
	lastLine := -1
	for ip < len(code.Instructions) {
		ip = disassembleInstruction(b, code, ip, &lastLine)
	}
	for _, c := range code.Constants {
		if c.Kind == value.KindFunc {
			b.WriteString("\n")
			disassembleInto(b, c.Fn, name(c.Fn))
		}
	}
}

func disassembleInstruction(b *strings.Builder, code *value.ByteCode, ip int, lastLine *int) int {
	op := opcode.Opcode(code.ReadByte(ip))
	line := code.LineAt(ip)
	fmt.Fprintf(b, "%04d ", ip)
	if line == *lastLine {
		b.WriteString("   | ")
	} else {
		fmt.Fprintf(b, "%4d ", line)
		*lastLine = line
	}

	width := opcode.OperandWidth(op)
	switch width {
	case 0:
		fmt.Fprintf(b, "%s\n", op)
		return ip + 1
	case 1:
		operand := code.ReadByte(ip + 1)
		writeOperandLine(b, op, code, int(operand))
		return ip + 2
	case 2:
		operand := code.ReadShort(ip + 1)
		writeOperandLine(b, op, code, int(operand))
		return ip + 3
	default:
		fmt.Fprintf(b, "%s (unknown width)\n", op)
		return ip + 1
	}
}

func writeOperandLine(b *strings.Builder, op opcode.Opcode, code *value.ByteCode, operand int) {
	switch op {
	case opcode.Constant, opcode.DefineGlobal, opcode.GetGlobal, opcode.SetGlobal,
		opcode.GetProperty, opcode.SetProperty:
		if operand >= 0 && operand < len(code.Constants) {
			fmt.Fprintf(b, "%-24s %4d '%s'\n", op, operand, value.ToDisplayString(code.Constants[operand]))
			return
		}
	}
	fmt.Fprintf(b, "%-24s %4d\n", op, operand)
}
