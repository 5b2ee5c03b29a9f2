package compiler

import (
	"github.com/hymnlang/hymn/pkg/opcode"
	"github.com/hymnlang/hymn/pkg/value"
)

// peephole inspects the instructions just appended to the current
// function and rewrites small, provably-equivalent windows in place.
// It runs after every emit* call, so each rewrite sees a stream that
// has already had every earlier rewrite applied -- fusions compose
// (e.g. CONSTANT+ADD folding into INCREMENT exposes the GET_LOCAL
// immediately before it for the next rule, which folds that into
// INCREMENT_LOCAL) without a second full pass.
//
// Rewrites never look behind peepholeBoundary: that offset marks the
// last jump target or loop head patched into this stream, and crossing
// it would silently change what a jump from outside the window lands
// on.
func (c *Compiler) peephole() {
	if c.peepholeDisabled {
		return
	}
	c.fusePopRun()
	c.foldConstantNegate()
	c.fuseConstantIncrement()
	c.fuseLocalIncrement()
	c.fuseAddTwoLocal()
	c.fuseIncrementLocalAndSet()
	c.fuseCompareJump()
	c.fuseCallReturn()
}

// lastTwoOpcodes returns the opcodes of the last two instructions since
// the peephole boundary together with the byte offsets they start at, or
// ok=false if fewer than two instructions exist since the boundary.
func (c *Compiler) lastTwoOpcodes() (prevOp, lastOp opcode.Opcode, prevAt, lastAt int, ok bool) {
	// Opcodes are variable-width, so instruction starts can only be
	// found by scanning forward from a known boundary -- never by
	// walking backward from the end.
	starts := c.instructionStartsSince(c.peepholeBoundary)
	if len(starts) < 2 {
		return 0, 0, 0, 0, false
	}
	code := c.code()
	prevAt = starts[len(starts)-2]
	lastAt = starts[len(starts)-1]
	return opcode.Opcode(code[prevAt]), opcode.Opcode(code[lastAt]), prevAt, lastAt, true
}

// lastThreeOpcodes is lastTwoOpcodes' three-instruction counterpart,
// for the rules that only fire on a complete three-instruction window
// (GET_LOCAL+GET_LOCAL+ADD, INCREMENT_LOCAL+SET_LOCAL+POP).
func (c *Compiler) lastThreeOpcodes() (op1, op2, op3 opcode.Opcode, at1, at2, at3 int, ok bool) {
	starts := c.instructionStartsSince(c.peepholeBoundary)
	if len(starts) < 3 {
		return 0, 0, 0, 0, 0, 0, false
	}
	code := c.code()
	at1 = starts[len(starts)-3]
	at2 = starts[len(starts)-2]
	at3 = starts[len(starts)-1]
	return opcode.Opcode(code[at1]), opcode.Opcode(code[at2]), opcode.Opcode(code[at3]), at1, at2, at3, true
}

// instructionStartsSince walks the instruction stream from offset
// `from` to the end, returning each instruction's starting offset.
func (c *Compiler) instructionStartsSince(from int) []int {
	code := c.code()
	var starts []int
	i := from
	for i < len(code) {
		starts = append(starts, i)
		i += 1 + opcode.OperandWidth(opcode.Opcode(code[i]))
	}
	return starts
}

// fusePopRun rewrites a POP immediately following another POP, POP_TWO
// or POP_N into a single, wider POP_N, so a block scope that discards
// several locals at once (the "drop a discarded expression statement's
// duplicate, then drop the statement result" pattern array/table
// literal compilation emits, chained N times at scope exit) ends up as
// one instruction instead of N.
func (c *Compiler) fusePopRun() {
	prevOp, lastOp, prevAt, lastAt, ok := c.lastTwoOpcodes()
	if !ok || lastOp != opcode.Pop {
		return
	}
	code := c.code()
	switch prevOp {
	case opcode.Pop:
		code[prevAt] = byte(opcode.PopTwo)
		c.truncateCode(prevAt + 1)
	case opcode.PopTwo:
		code[prevAt] = byte(opcode.PopN)
		code[prevAt+1] = 3
		c.truncateCode(prevAt + 2)
	case opcode.PopN:
		count := code[prevAt+1]
		if count == 255 {
			return
		}
		code[prevAt+1] = count + 1
		c.truncateCode(lastAt)
	}
}

// foldConstantNegate folds a NEGATE applied directly to a numeric
// literal into the literal's negation, computed once at compile time
// instead of on every pass through the bytecode.
func (c *Compiler) foldConstantNegate() {
	prevOp, lastOp, prevAt, _, ok := c.lastTwoOpcodes()
	if !ok || lastOp != opcode.Negate || prevOp != opcode.Constant {
		return
	}
	code := c.code()
	idx := (uint16(code[prevAt+1]) << 8) | uint16(code[prevAt+2])
	val := c.scope.fn.Code.Constants[idx]
	var negated value.Value
	switch val.Kind {
	case value.KindInt:
		negated = value.Int(-val.I)
	case value.KindFloat:
		negated = value.Float(-val.F)
	default:
		return
	}
	newIdx := c.addConstant(negated)
	code[prevAt+1] = byte(newIdx >> 8)
	code[prevAt+2] = byte(newIdx)
	c.truncateCode(prevAt + 3)
}

// fuseConstantIncrement rewrites `CONSTANT k; ADD` into `INCREMENT k`
// when k is a small positive integer literal, matching the one-byte
// amount operand INCREMENT (and INCREMENT_LOCAL below) carry instead of
// a full constant-pool load.
func (c *Compiler) fuseConstantIncrement() {
	prevOp, lastOp, prevAt, _, ok := c.lastTwoOpcodes()
	if !ok || lastOp != opcode.Add || prevOp != opcode.Constant {
		return
	}
	code := c.code()
	idx := (uint16(code[prevAt+1]) << 8) | uint16(code[prevAt+2])
	val := c.scope.fn.Code.Constants[idx]
	if val.Kind != value.KindInt || val.I < 1 || val.I > 254 {
		return
	}
	code[prevAt] = byte(opcode.Increment)
	code[prevAt+1] = byte(val.I)
	c.truncateCode(prevAt + 2)
}

// fuseLocalIncrement rewrites `GET_LOCAL s; INCREMENT n` into
// `INCREMENT_LOCAL s n`, reading the local directly instead of pushing
// it only to immediately pop it back off for the increment.
func (c *Compiler) fuseLocalIncrement() {
	prevOp, lastOp, prevAt, lastAt, ok := c.lastTwoOpcodes()
	if !ok || lastOp != opcode.Increment || prevOp != opcode.GetLocal {
		return
	}
	code := c.code()
	slot := code[prevAt+1]
	amount := code[lastAt+1]
	code[prevAt] = byte(opcode.IncrementLocal)
	code[prevAt+1] = slot
	code[prevAt+2] = amount
	c.truncateCode(prevAt + 3)
}

// fuseAddTwoLocal rewrites `GET_LOCAL s; GET_LOCAL t; ADD` into
// `ADD_TWO_LOCAL s t`, reading both locals directly instead of pushing
// each and popping them back off for ADD.
func (c *Compiler) fuseAddTwoLocal() {
	op1, op2, op3, at1, at2, _, ok := c.lastThreeOpcodes()
	if !ok || op3 != opcode.Add || op1 != opcode.GetLocal || op2 != opcode.GetLocal {
		return
	}
	code := c.code()
	s, t := code[at1+1], code[at2+1]
	code[at1] = byte(opcode.AddTwoLocal)
	code[at1+1] = s
	code[at1+2] = t
	c.truncateCode(at1 + 3)
}

// fuseIncrementLocalAndSet rewrites `INCREMENT_LOCAL s n; SET_LOCAL s;
// POP` into `INCREMENT_LOCAL_AND_SET s n`, the shape any `x = x + n`
// assignment statement -- including a for-loop's default increment
// clause -- reduces to once the two rules above have already fired.
func (c *Compiler) fuseIncrementLocalAndSet() {
	op1, op2, op3, at1, at2, _, ok := c.lastThreeOpcodes()
	if !ok || op3 != opcode.Pop || op2 != opcode.SetLocal || op1 != opcode.IncrementLocal {
		return
	}
	code := c.code()
	if code[at1+1] != code[at2+1] {
		return
	}
	code[at1] = byte(opcode.IncrementLocalAndSet)
	c.truncateCode(at1 + 3)
}

// fuseCompareJump rewrites `<comparison>` immediately followed by
// `JUMP_IF_FALSE` or `JUMP_IF_TRUE` into the single fused jump-on-
// compare opcode, eliminating the intermediate boolean push entirely.
// JUMP_IF_TRUE keeps the comparison's own sense; JUMP_IF_FALSE uses the
// logical negation (pkg/opcode.InverseFusedJump).
func (c *Compiler) fuseCompareJump() {
	prevOp, lastOp, prevAt, lastAt, ok := c.lastTwoOpcodes()
	if !ok {
		return
	}
	if lastOp != opcode.JumpIfFalse && lastOp != opcode.JumpIfTrue {
		return
	}
	fused, isCompare := opcode.FusedJump(prevOp)
	if !isCompare {
		return
	}
	if lastOp == opcode.JumpIfFalse {
		if inv, ok := opcode.InverseFusedJump(fused); ok {
			fused = inv
		}
	}
	code := c.code()
	// Overwrite the comparison opcode byte with the fused opcode, then
	// shift the two jump-offset operand bytes left to close the gap
	// left by dropping the separate jump opcode byte.
	code[prevAt] = byte(fused)
	offsetHi, offsetLo := code[lastAt+1], code[lastAt+2]
	copy(code[prevAt+1:], []byte{offsetHi, offsetLo})
	c.truncateCode(prevAt + 3)
}

// fuseCallReturn rewrites `CALL n` immediately followed by `RETURN`
// into `TAIL_CALL n`: the VM reuses the current frame for the callee
// instead of pushing a new one, giving true tail-call elimination for
// `return f(...)` in any function position, including recursive calls.
func (c *Compiler) fuseCallReturn() {
	prevOp, lastOp, prevAt, _, ok := c.lastTwoOpcodes()
	if !ok || lastOp != opcode.Return || prevOp != opcode.Call {
		return
	}
	code := c.code()
	code[prevAt] = byte(opcode.TailCall)
	c.truncateCode(prevAt + 2)
}

func (c *Compiler) truncateCode(n int) {
	bc := c.scope.fn.Code
	bc.Instructions = bc.Instructions[:n]
	bc.Lines = bc.Lines[:n]
}
