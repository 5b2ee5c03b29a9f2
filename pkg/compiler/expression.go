package compiler

import (
	"github.com/hymnlang/hymn/pkg/opcode"
	"github.com/hymnlang/hymn/pkg/token"
	"github.com/hymnlang/hymn/pkg/value"
)

// precedence mirrors the source compiler's enum exactly: each binding
// power sits one above the operators that associate more loosely, so
// compileWithPrecedence(p) parses anything binding at least as tightly
// as p.
type precedence int

const (
	precNone precedence = iota
	precAssign
	precBits
	precOr
	precAnd
	precEquality
	precCompare
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type prefixFn func(c *Compiler, canAssign bool)
type infixFn func(c *Compiler, canAssign bool)

type rule struct {
	prefix     prefixFn
	infix      infixFn
	precedence precedence
}

// rules is the token-indexed Pratt dispatch table: for every token kind
// that can start or continue an expression, it names the prefix parser,
// the infix parser, and the infix precedence. A nil prefix means the
// token can never begin an expression; a nil infix means it never
// continues one.
var rules map[token.Kind]rule

func init() {
	rules = map[token.Kind]rule{
		token.ADD:             {nil, compileBinary, precTerm},
		token.AND:             {nil, compileAnd, precAnd},
		token.BIT_AND:         {nil, compileBinary, precBits},
		token.BIT_LEFT_SHIFT:  {nil, compileBinary, precBits},
		token.BIT_NOT:         {compileUnary, nil, precNone},
		token.BIT_OR:          {nil, compileBinary, precBits},
		token.BIT_RIGHT_SHIFT: {nil, compileBinary, precBits},
		token.BIT_XOR:         {nil, compileBinary, precBits},
		token.CLEAR:           {singleArgBuiltin(opcode.Clear), nil, precNone},
		token.COPY:            {singleArgBuiltin(opcode.Copy), nil, precNone},
		token.DELETE:          {deleteExpression, nil, precNone},
		token.DIVIDE:          {nil, compileBinary, precFactor},
		token.DOT:             {nil, compileDot, precCall},
		token.EQUAL:           {nil, compileBinary, precEquality},
		token.FALSE:           {compileFalse, nil, precNone},
		token.FLOAT:           {compileFloatLiteral, nil, precNone},
		token.FLOAT_FUNC:      {singleArgBuiltin(opcode.ToFloat), nil, precNone},
		token.GREATER:         {nil, compileBinary, precCompare},
		token.GREATER_EQUAL:   {nil, compileBinary, precCompare},
		token.IDENT:           {compileVariable, nil, precNone},
		token.INDEX:           {indexExpression, nil, precNone},
		token.INSERT:          {insertExpression, nil, precNone},
		token.INTEGER:         {compileIntLiteral, nil, precNone},
		token.INT_FUNC:        {singleArgBuiltin(opcode.ToInteger), nil, precNone},
		token.KEYS:            {singleArgBuiltin(opcode.Keys), nil, precNone},
		token.LEFT_CURLY:      {compileTable, nil, precNone},
		token.LEFT_PAREN:      {compileGroup, compileCall, precCall},
		token.LEFT_SQUARE:     {compileArray, compileSquare, precCall},
		token.LEN:             {singleArgBuiltin(opcode.Len), nil, precNone},
		token.LESS:            {nil, compileBinary, precCompare},
		token.LESS_EQUAL:      {nil, compileBinary, precCompare},
		token.MODULO:          {nil, compileBinary, precFactor},
		token.MULTIPLY:        {nil, compileBinary, precFactor},
		token.NONE:            {compileNone, nil, precNone},
		token.NOT:             {compileUnary, nil, precNone},
		token.NOT_EQUAL:       {nil, compileBinary, precEquality},
		token.OR:              {nil, compileOr, precOr},
		token.POP:             {popExpression, nil, precNone},
		token.PUSH:            {pushExpression, nil, precNone},
		token.STRING:          {compileStringLiteral, nil, precNone},
		token.STRING_FUNC:     {singleArgBuiltin(opcode.ToString), nil, precNone},
		token.SUBTRACT:        {compileUnary, compileBinary, precTerm},
		token.TRUE:            {compileTrue, nil, precNone},
		token.TYPE_FUNC:       {singleArgBuiltin(opcode.Type), nil, precNone},
	}
}

func (c *Compiler) expression() { c.parsePrecedence(precAssign) }

func (c *Compiler) parsePrecedence(p precedence) {
	c.advance()
	prefix := rules[c.previous.Kind].prefix
	if prefix == nil {
		c.error("Expected expression.")
		return
	}
	canAssign := p <= precAssign
	prefix(c, canAssign)

	for p <= rules[c.current.Kind].precedence {
		c.advance()
		infix := rules[c.previous.Kind].infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.ASSIGN) {
		c.error("Invalid assignment target.")
	}
}

// --- literals -----------------------------------------------------------

func compileNone(c *Compiler, _ bool)  { c.emit(opcode.None) }
func compileTrue(c *Compiler, _ bool)  { c.emit(opcode.True) }
func compileFalse(c *Compiler, _ bool) { c.emit(opcode.False) }

func compileIntLiteral(c *Compiler, _ bool) {
	c.writeConstant(value.Int(parseIntLiteral(c.previous.Text)))
}

func compileFloatLiteral(c *Compiler, _ bool) {
	c.writeConstant(value.Float(parseFloatLiteral(c.previous.Text)))
}

func compileStringLiteral(c *Compiler, _ bool) {
	c.writeConstant(value.StringValue(c.intern.InternString(c.previous.Text)))
}

func compileVariable(c *Compiler, canAssign bool) {
	c.namedVariable(c.previous.Text, canAssign)
}

// --- operators ------------------------------------------------------------

func compileUnary(c *Compiler, _ bool) {
	op := c.previous.Kind
	c.parsePrecedence(precUnary)
	switch op {
	case token.NOT:
		c.emit(opcode.Not)
	case token.SUBTRACT:
		c.emit(opcode.Negate)
	case token.BIT_NOT:
		c.emit(opcode.BitNot)
	}
}

func compileBinary(c *Compiler, _ bool) {
	op := c.previous.Kind
	r := rules[op]
	c.parsePrecedence(r.precedence + 1)
	switch op {
	case token.ADD:
		c.emit(opcode.Add)
	case token.SUBTRACT:
		c.emit(opcode.Subtract)
	case token.MULTIPLY:
		c.emit(opcode.Multiply)
	case token.DIVIDE:
		c.emit(opcode.Divide)
	case token.MODULO:
		c.emit(opcode.Modulo)
	case token.EQUAL:
		c.emit(opcode.Equal)
	case token.NOT_EQUAL:
		c.emit(opcode.NotEqual)
	case token.LESS:
		c.emit(opcode.Less)
	case token.LESS_EQUAL:
		c.emit(opcode.LessEqual)
	case token.GREATER:
		c.emit(opcode.Greater)
	case token.GREATER_EQUAL:
		c.emit(opcode.GreaterEqual)
	case token.BIT_AND:
		c.emit(opcode.BitAnd)
	case token.BIT_OR:
		c.emit(opcode.BitOr)
	case token.BIT_XOR:
		c.emit(opcode.BitXor)
	case token.BIT_LEFT_SHIFT:
		c.emit(opcode.LeftShift)
	case token.BIT_RIGHT_SHIFT:
		c.emit(opcode.RightShift)
	}
}

// compileAnd/compileOr implement short-circuiting by threading a jump
// list through the compiler rather than emitting a jump-over-jump: the
// left operand's falsy (resp. truthy) jump is recorded and patched once
// the whole && / || chain is known, so N-ary chains patch to a single
// shared landing point instead of nesting.
func compileAnd(c *Compiler, _ bool) {
	c.jumpAnd = pushJump(c.jumpAnd, c.emitJump(opcode.JumpIfFalse), c.scope.depth)
	c.parsePrecedence(precAnd)
}

func compileOr(c *Compiler, _ bool) {
	c.jumpOr = pushJump(c.jumpOr, c.emitJump(opcode.JumpIfTrue), c.scope.depth)
	c.freeJumps(c.jumpAnd)
	c.jumpAnd = nil
	c.parsePrecedence(precOr)
}

// --- grouping, calls, containers -------------------------------------------

func compileGroup(c *Compiler, _ bool) {
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expected right parenthesis.")
}

func compileCall(c *Compiler, _ bool) {
	count := c.arguments()
	c.emitOne(opcode.Call, count)
}

func (c *Compiler) arguments() byte {
	var count int
	if !c.check(token.RIGHT_PAREN) {
		for {
			c.expression()
			if count == 255 {
				c.error("Can't have more than 255 function arguments.")
				break
			}
			count++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RIGHT_PAREN, "Expected ')' after function arguments.")
	return byte(count)
}

func compileDot(c *Compiler, canAssign bool) {
	c.consume(token.IDENT, "Expected property name after '.'.")
	name := c.identConstant(c.previous.Text)
	if canAssign && c.match(token.ASSIGN) {
		c.expression()
		c.emitShort(opcode.SetProperty, name)
	} else {
		c.emitShort(opcode.GetProperty, name)
	}
}

// compileSquare handles both index access `a[i]` and slicing
// `a[lo:hi]`, including the open-ended forms `a[:hi]` and `a[lo:]`.
func compileSquare(c *Compiler, canAssign bool) {
	if c.match(token.COLON) {
		c.writeConstant(value.Int(0))
		c.compileSliceEnd()
		c.emit(opcode.Slice)
		return
	}
	c.expression()
	if c.match(token.COLON) {
		c.compileSliceEnd()
		c.emit(opcode.Slice)
		return
	}
	c.consume(token.RIGHT_SQUARE, "Expected ']' after expression.")
	if canAssign && c.match(token.ASSIGN) {
		c.expression()
		c.emit(opcode.SetDynamic)
	} else {
		c.emit(opcode.GetDynamic)
	}
}

func (c *Compiler) compileSliceEnd() {
	if c.match(token.RIGHT_SQUARE) {
		c.emit(opcode.None)
		return
	}
	c.expression()
	c.consume(token.RIGHT_SQUARE, "Expected ']' after expression.")
}

// compileArray compiles `[a, b, c]`: allocate an empty array, then
// duplicate-push-pop each element so the array stays on the stack
// across every element's evaluation.
func compileArray(c *Compiler, _ bool) {
	c.writeConstant(value.Value{Kind: value.KindArray, Arr: value.NewArray()})
	if c.match(token.RIGHT_SQUARE) {
		return
	}
	for !c.check(token.RIGHT_SQUARE) && !c.check(token.EOF) {
		c.emit(opcode.Duplicate)
		c.expression()
		c.emit(opcode.ArrayPush)
		c.emit(opcode.Pop)
		if !c.check(token.RIGHT_SQUARE) {
			c.consume(token.COMMA, "Expected ','.")
		}
	}
	c.consume(token.RIGHT_SQUARE, "Expected ']' declaring array.")
}

// compileTable compiles `{a: 1, b: 2}` the same way: duplicate the
// table reference, set one property, pop the duplicate.
func compileTable(c *Compiler, _ bool) {
	c.writeConstant(value.Value{Kind: value.KindTable, Tab: value.NewTable()})
	if c.match(token.RIGHT_CURLY) {
		return
	}
	for !c.check(token.RIGHT_CURLY) && !c.check(token.EOF) {
		c.emit(opcode.Duplicate)
		c.consume(token.IDENT, "Expected property name.")
		name := c.identConstant(c.previous.Text)
		c.consume(token.COLON, "Expected ':'.")
		c.expression()
		c.emitShort(opcode.SetProperty, name)
		c.emit(opcode.Pop)
		if !c.check(token.RIGHT_CURLY) {
			c.consume(token.COMMA, "Expected ','.")
		}
	}
	c.consume(token.RIGHT_CURLY, "Expected '}' declaring table.")
}

// --- builtin keyword-call forms ---------------------------------------

// singleArgBuiltin returns a prefix parser for the single-argument
// builtin forms (`len(x)`, `type(x)`, `int(x)`, ...): consume '(', one
// expression, ')', then emit op.
func singleArgBuiltin(op opcode.Opcode) prefixFn {
	return func(c *Compiler, _ bool) {
		kw := c.previous.Text
		c.consume(token.LEFT_PAREN, "Expected '(' after "+kw+".")
		c.expression()
		c.consume(token.RIGHT_PAREN, "Expected ')' after "+kw+" expression.")
		c.emit(op)
	}
}

func popExpression(c *Compiler, _ bool) {
	c.consume(token.LEFT_PAREN, "Expected '(' after pop.")
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expected ')' after pop expression.")
	c.emit(opcode.ArrayPop)
}

func pushExpression(c *Compiler, _ bool) {
	c.consume(token.LEFT_PAREN, "Expected '(' after push.")
	c.expression()
	c.consume(token.COMMA, "Expected ',' between push arguments.")
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expected ')' after push expression.")
	c.emit(opcode.ArrayPush)
}

func insertExpression(c *Compiler, _ bool) {
	c.consume(token.LEFT_PAREN, "Expected '(' after insert.")
	c.expression()
	c.consume(token.COMMA, "Expected ',' between insert arguments.")
	c.expression()
	c.consume(token.COMMA, "Expected ',' between insert arguments.")
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expected ')' after insert expression.")
	c.emit(opcode.ArrayInsert)
}

func deleteExpression(c *Compiler, _ bool) {
	c.consume(token.LEFT_PAREN, "Expected '(' after delete.")
	c.expression()
	c.consume(token.COMMA, "Expected ',' between delete arguments.")
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expected ')' after delete expression.")
	c.emit(opcode.Delete)
}

func indexExpression(c *Compiler, _ bool) {
	c.consume(token.LEFT_PAREN, "Expected '(' for parameters in `index`.")
	c.expression()
	c.consume(token.COMMA, "Expected 2 arguments for `index`.")
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expected ')' after parameters in `index`.")
	c.emit(opcode.Index)
}
