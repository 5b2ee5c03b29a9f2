package compiler

import (
	"github.com/hymnlang/hymn/pkg/opcode"
	"github.com/hymnlang/hymn/pkg/token"
	"github.com/hymnlang/hymn/pkg/value"
)

func (c *Compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.expression()
		c.emit(opcode.Print)
	case c.match(token.USE):
		c.expression()
		c.emit(opcode.Use)
	case c.match(token.THROW):
		c.expression()
		c.emit(opcode.Throw)
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.SWITCH):
		c.switchStatement()
	case c.match(token.ITERATE):
		c.iterateStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.BREAK):
		c.breakStatement()
	case c.match(token.CONTINUE):
		c.continueStatement()
	case c.match(token.TRY):
		c.tryStatement()
	case c.match(token.BEGIN):
		c.block()
		c.consume(token.END, "Expected 'end' after block.")
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.emit(opcode.Pop)
}

// ifStatement compiles if/elif*/else?/end. Each branch gets its own
// JUMP_IF_FALSE over its body and a trailing JUMP to the chain's single
// exit point; fused compare+jump (pkg/opcode.FusedJump) is applied by
// the peephole layer even here; unlike the source's "probably broken"
// caveat, nested conditionals are exercised and kept safe by resetting
// the peephole boundary at every patched jump target (see peephole.go).
func (c *Compiler) ifStatement() {
	c.expression()
	jump := c.emitJump(opcode.JumpIfFalse)

	c.freeJumps(c.jumpOr)
	c.jumpOr = nil

	c.ifBody()

	var ends []int
	ends = append(ends, c.emitJump(opcode.Jump))

	for c.match(token.ELIF) {
		c.patchJump(jump)

		c.freeJumps(c.jumpAnd)
		c.jumpAnd = nil

		c.expression()
		jump = c.emitJump(opcode.JumpIfFalse)

		c.freeJumps(c.jumpOr)
		c.jumpOr = nil

		c.ifBody()
		ends = append(ends, c.emitJump(opcode.Jump))
	}

	c.patchJump(jump)
	c.freeJumps(c.jumpAnd)
	c.jumpAnd = nil

	if c.match(token.ELSE) {
		c.block()
	}

	for _, e := range ends {
		c.patchJump(e)
	}

	c.consume(token.END, "If: Missing 'end'.")
}

// caseBody compiles one switch case's statement list, stopping at the
// next CASE or ELSE rather than requiring its own END.
func (c *Compiler) caseBody() {
	c.beginScope()
	for !c.check(token.CASE) && !c.check(token.ELSE) && !c.check(token.END) && !c.check(token.EOF) {
		c.declaration()
	}
	c.endScope()
}

// ifBody compiles one if/elif branch's statement list. Unlike the
// shared block() helper, it also stops at ELIF/ELSE so control returns
// to ifStatement to compile the next branch rather than erroring on a
// missing END.
func (c *Compiler) ifBody() {
	c.beginScope()
	for !c.check(token.ELIF) && !c.check(token.ELSE) && !c.check(token.END) && !c.check(token.EOF) {
		c.declaration()
	}
	c.endScope()
}

// compileCaseLiteral parses exactly one literal token (the only
// expression form case labels accept) and emits it directly, bypassing
// the full Pratt chain since case labels are never compound.
func (c *Compiler) compileCaseLiteral() bool {
	c.advance()
	switch c.previous.Kind {
	case token.NONE:
		c.emit(opcode.None)
	case token.TRUE:
		c.emit(opcode.True)
	case token.FALSE:
		c.emit(opcode.False)
	case token.INTEGER:
		c.writeConstant(value.Int(parseIntLiteral(c.previous.Text)))
	case token.FLOAT:
		c.writeConstant(value.Float(parseFloatLiteral(c.previous.Text)))
	case token.STRING:
		c.writeConstant(value.StringValue(c.intern.InternString(c.previous.Text)))
	default:
		return false
	}
	return true
}

// switchStatement compiles the subject into a hidden local once, then
// for each `case` compares it (with `or`-joined alternates sharing one
// body) and falls through to the next case's test on mismatch.
func (c *Compiler) switchStatement() {
	c.beginScope()
	subject := c.pushHiddenLocal()
	c.expression()

	if !c.check(token.CASE) {
		c.error("Expected case.")
		return
	}

	jump := -1
	var bodyEnds []int

	for c.match(token.CASE) {
		if jump != -1 {
			c.patchJump(jump)
			c.emit(opcode.Pop)
		}

		if !c.compileCaseLiteral() {
			c.error("Expected literal for case.")
		}
		c.emitOne(opcode.GetLocal, subject)
		c.emit(opcode.Equal)

		var orJumps []int
		for c.match(token.OR) {
			orJumps = append(orJumps, c.emitJump(opcode.JumpIfTrue))
			c.emit(opcode.Pop)
			if !c.compileCaseLiteral() {
				c.error("Expected literal after 'or' in case.")
			}
			c.emitOne(opcode.GetLocal, subject)
			c.emit(opcode.Equal)
		}

		jump = c.emitJump(opcode.JumpIfFalse)
		for _, j := range orJumps {
			c.patchJump(j)
		}
		c.emit(opcode.Pop)

		c.caseBody()
		bodyEnds = append(bodyEnds, c.emitJump(opcode.Jump))
	}

	if jump != -1 {
		c.patchJump(jump)
		c.emit(opcode.Pop)
	}

	if c.match(token.ELSE) {
		c.block()
	}

	for _, e := range bodyEnds {
		c.patchJump(e)
	}

	c.endScope()
	c.consume(token.END, "Expected 'end' after switch statement.")
}

func (c *Compiler) whileStatement() {
	start := len(c.code())
	c.loop = &loopFrame{start: start, depth: c.scope.depth + 1, next: c.loop}

	c.expression()
	jump := c.emitJump(opcode.JumpIfFalse)

	c.block()
	c.emitLoop(start)

	c.loop = c.loop.next
	c.patchJump(jump)
	c.patchJumpList()

	c.consume(token.END, "While: Missing 'end'.")
}

// forStatement compiles `for i = 0, i < n[, i = i+1]` / ... end: an
// assignment, a comparison gate, an optional explicit increment
// expression (default: increment-and-set by 1), and a body -- mirroring
// the source's three-clause numeric loop exactly.
func (c *Compiler) forStatement() {
	c.beginScope()

	c.letDeclaration()
	index := byte(len(c.scope.locals) - 1)

	c.consume(token.COMMA, "For: Missing ','.")

	compare := len(c.code())
	c.expression()
	jump := c.emitJump(opcode.JumpIfFalse)

	body := c.emitJump(opcode.Jump)
	increment := len(c.code())

	c.loop = &loopFrame{start: increment, depth: c.scope.depth + 1, next: c.loop}

	if c.match(token.COMMA) {
		c.expression()
	} else {
		// Emits the same GET_LOCAL/CONSTANT 1/ADD/SET_LOCAL/POP an
		// explicit `i = i + 1` would, which the peephole optimizer
		// fuses down to a single INCREMENT_LOCAL_AND_SET (peephole.go).
		c.emitOne(opcode.GetLocal, index)
		c.writeConstant(value.Int(1))
		c.emit(opcode.Add)
		c.emitOne(opcode.SetLocal, index)
		c.emit(opcode.Pop)
	}
	c.emitLoop(compare)

	c.patchJump(body)
	c.block()
	c.emitLoop(increment)

	c.loop = c.loop.next
	c.patchJump(jump)
	c.patchJumpList()

	c.endScope()
	c.consume(token.END, "For: Missing 'end'.")
}

// iterateStatement compiles `iterate value in expr ... end` or
// `iterate key, value in expr ... end`, which walks either a Table (via its sorted Keys()) or an Array
// by numeric index, type-checked at runtime since the subject's type
// isn't known at compile time.
func (c *Compiler) iterateStatement() {
	c.beginScope()

	var id byte
	slotValue := byte(len(c.scope.locals))
	c.declareLocal(c.mustIdent("Iterator: Missing parameter."))
	c.localInitialize()

	if c.match(token.COMMA) {
		id = slotValue
		c.emit(opcode.None)
		slotValue = byte(len(c.scope.locals))
		c.declareLocal(c.mustIdent("Iterator: Missing second parameter."))
		c.localInitialize()
		c.emit(opcode.None)
	} else {
		c.emit(opcode.None)
		id = c.pushHiddenLocal()
		c.emit(opcode.None)
	}

	c.consume(token.IN, "Iterator: Missing 'in' after parameters.")

	object := c.pushHiddenLocal()
	c.expression()

	keys := c.pushHiddenLocal()
	c.emit(opcode.None)

	length := c.pushHiddenLocal()
	c.emit(opcode.None)

	index := c.pushHiddenLocal()
	c.writeConstant(intConst(0))

	typeLocal := c.pushHiddenLocal()
	c.emitOne(opcode.GetLocal, object)
	c.emit(opcode.Type)

	c.emitOne(opcode.GetLocal, typeLocal)
	c.writeConstant(stringConst(c, "Table"))
	c.emit(opcode.Equal)
	jumpNotTable := c.emitJump(opcode.JumpIfFalse)

	c.emit(opcode.Pop)
	c.emitOne(opcode.GetLocal, object)
	c.emit(opcode.Keys)
	c.emitOne(opcode.SetLocal, keys)
	c.emit(opcode.Len)
	c.emitOne(opcode.SetLocal, length)
	c.emit(opcode.Pop)
	jumpTableEnd := c.emitJump(opcode.Jump)

	c.patchJump(jumpNotTable)
	c.emit(opcode.Pop)
	c.emitOne(opcode.GetLocal, typeLocal)
	c.writeConstant(stringConst(c, "Array"))
	c.emit(opcode.Equal)
	jumpNotArray := c.emitJump(opcode.JumpIfFalse)

	c.emit(opcode.Pop)
	c.emitOne(opcode.GetLocal, object)
	c.emit(opcode.Len)
	c.emitOne(opcode.SetLocal, length)
	c.emit(opcode.Pop)
	jumpArrayEnd := c.emitJump(opcode.Jump)

	c.patchJump(jumpNotArray)
	c.emit(opcode.Pop)
	c.writeConstant(stringConst(c, "Iterator: Expected `Array` or `Table`"))
	c.emit(opcode.Throw)

	c.patchJump(jumpTableEnd)
	c.patchJump(jumpArrayEnd)

	compare := len(c.code())
	c.emitOne(opcode.GetLocal, index)
	c.emitOne(opcode.GetLocal, length)
	c.emit(opcode.Less)
	jump := c.emitJump(opcode.JumpIfFalse)
	c.emit(opcode.Pop)

	body := c.emitJump(opcode.Jump)
	increment := len(c.code())

	c.loop = &loopFrame{start: increment, depth: c.scope.depth + 1, next: c.loop}

	c.emitOne(opcode.GetLocal, index)
	c.writeConstant(intConst(1))
	c.emit(opcode.Add)
	c.emitOne(opcode.SetLocal, index)
	c.emit(opcode.Pop)
	c.emitLoop(compare)

	c.patchJump(body)

	c.emitOne(opcode.GetLocal, object)
	c.emitOne(opcode.GetLocal, keys)
	c.emit(opcode.None)
	c.emit(opcode.Equal)
	jumpNoKeys := c.emitJump(opcode.JumpIfFalse)

	c.emit(opcode.Pop)
	c.emitOne(opcode.GetLocal, index)
	jumpNoKeysEnd := c.emitJump(opcode.Jump)

	c.patchJump(jumpNoKeys)
	c.emit(opcode.Pop)
	c.emitOne(opcode.GetLocal, keys)
	c.emitOne(opcode.GetLocal, index)
	c.emit(opcode.GetDynamic)

	c.patchJump(jumpNoKeysEnd)

	c.emitOne(opcode.SetLocal, id)
	c.emit(opcode.GetDynamic)
	c.emitOne(opcode.SetLocal, slotValue)
	c.emit(opcode.Pop)

	c.block()
	c.emitLoop(increment)

	c.loop = c.loop.next

	c.patchJump(jump)
	c.emit(opcode.Pop)

	c.patchJumpList()
	c.endScope()
	c.consume(token.END, "Iterator: Missing 'end'.")
}

func (c *Compiler) mustIdent(msg string) string {
	c.consume(token.IDENT, msg)
	return c.previous.Text
}

func intConst(i int64) value.Value { return value.Int(i) }

func stringConst(c *Compiler, s string) value.Value {
	return value.StringValue(c.intern.InternString(s))
}

func (c *Compiler) returnStatement() {
	if c.scope.kind == kindScript {
		c.error("Return: Outside of function.")
	}
	if c.check(token.END) {
		c.emit(opcode.None)
	} else {
		c.expression()
	}
	c.emit(opcode.Return)
}

// popStackLoop emits a POP for every local declared at or below the
// active loop's depth, keeping the stack balanced when break/continue
// jump past scopes that would otherwise unwind it via endScope.
func (c *Compiler) popStackLoop() {
	depth := c.loop.depth
	s := c.scope
	for i := len(s.locals); i > 0; i-- {
		if s.locals[i-1].depth < depth {
			return
		}
		c.emit(opcode.Pop)
	}
}

func (c *Compiler) breakStatement() {
	if c.loop == nil {
		c.error("Break Error: Outside of loop.")
		return
	}
	c.popStackLoop()
	j := c.emitJump(opcode.Jump)
	c.breaks = pushJump(c.breaks, j, c.loop.depth)
}

func (c *Compiler) continueStatement() {
	if c.loop == nil {
		c.error("Continue Error: Outside of loop.")
		return
	}
	c.popStackLoop()
	c.emitLoop(c.loop.start)
}

// tryStatement records an exception range on the enclosing function
// covering the protected block, then compiles the `except name ... end`
// handler immediately after. The VM's unwinder (pkg/vm) searches these
// ranges by instruction pointer when a THROW propagates.
func (c *Compiler) tryStatement() {
	bc := c.scope.fn.Code
	startIP := len(bc.Instructions)
	localDepth := len(c.scope.locals)

	c.beginScope()
	for !c.check(token.EXCEPT) && !c.check(token.EOF) {
		c.declaration()
	}
	c.endScope()

	jump := c.emitJump(opcode.Jump)

	c.consume(token.EXCEPT, "Try: Missing 'except'.")
	c.boundary()
	endIP := len(bc.Instructions)

	c.scope.fn.Except = append(c.scope.fn.Except, value.ExceptionRange{
		StartIP: startIP, EndIP: endIP, LocalDepth: localDepth,
	})

	c.beginScope()
	message := c.variable("Try: Missing variable after 'except'.")
	c.finalizeVariable(message)
	for !c.check(token.END) && !c.check(token.EOF) {
		c.declaration()
	}
	c.endScope()

	c.consume(token.END, "Try: Missing 'end'.")
	c.patchJump(jump)
}
