// Package compiler turns Hymn source straight into bytecode. There is no
// intermediate syntax tree: compilation is a single pass driven by a
// Pratt (precedence-climbing) expression parser and a recursive-descent
// statement parser sharing one token stream from pkg/lexer.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hymnlang/hymn/pkg/lexer"
	"github.com/hymnlang/hymn/pkg/opcode"
	"github.com/hymnlang/hymn/pkg/token"
	"github.com/hymnlang/hymn/pkg/value"
)

// Error is a single compile-time diagnostic with a source excerpt and a
// caret pointing at the offending column, matching the error rendering
// the REPL and CLI both print.
type Error struct {
	Row, Column int
	Message     string
	Line        string
}

func (e *Error) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("%d:%d: %s", e.Row, e.Column, e.Message)
	}
	col := e.Column - 1
	if col < 0 {
		col = 0
	}
	caret := strings.Repeat(" ", col) + "^"
	return fmt.Sprintf("%d:%d: %s\n%s\n%s", e.Row, e.Column, e.Message, e.Line, caret)
}

// funcKind distinguishes the implicit top-level script scope from a
// user-declared function, since `return` outside any function is an
// error only in the former.
type funcKind int

const (
	kindScript funcKind = iota
	kindFunction
)

type local struct {
	name  string
	depth int // -1 while the initializer is still being compiled
}

// scope tracks one function's (or the script's) compile-time state: its
// constant pool and instruction stream (via fn.Code), and the locals
// currently visible inside it. Scopes nest one per function declaration,
// never one per block -- block scoping is depth alone.
type scope struct {
	enclosing *scope
	fn        *value.Func
	kind      funcKind
	locals    []local
	depth     int
}

type loopFrame struct {
	start int
	depth int
	next  *loopFrame
}

// pendingJump is a forward jump (break, or an `and`/`or` short-circuit)
// not yet patched, tagged with the scope depth it was emitted at.
type pendingJump struct {
	at    int
	depth int
	next  *pendingJump
}

// Compiler holds the full state of one compilation: the token stream,
// the current/previous token (one token of lookahead), the active scope
// chain, and the loop/jump bookkeeping break/continue and short-circuit
// operators need.
type Compiler struct {
	lx     *lexer.Lexer
	source string
	script string

	previous token.Token
	current  token.Token

	scope *scope
	loop  *loopFrame

	jumpAnd *pendingJump
	jumpOr  *pendingJump
	breaks  *pendingJump

	intern *value.InternSet

	peepholeBoundary int
	peepholeDisabled bool

	errors   []*Error
	panicked bool
}

// Compile compiles a complete Hymn source unit (a script or an imported
// module) into a top-level Func. scriptID names the unit for
// diagnostics and becomes the compiled Func's Script field.
func Compile(source, scriptID string, intern *value.InternSet) (*value.Func, []*Error) {
	return compile(source, scriptID, intern, false)
}

// CompileUnoptimized compiles source with the peephole optimizer
// disabled, emitting the unfused instruction sequence unconditionally.
// It exists only to test spec.md §8 scenario 8's peephole-equivalence
// property -- that a peephole-optimized and unoptimized compile of the
// same program produce identical observable output and terminal VM
// state -- against the real Compile path; nothing outside the test
// suite should need it.
func CompileUnoptimized(source, scriptID string, intern *value.InternSet) (*value.Func, []*Error) {
	return compile(source, scriptID, intern, true)
}

func compile(source, scriptID string, intern *value.InternSet, peepholeDisabled bool) (*value.Func, []*Error) {
	c := &Compiler{lx: lexer.New(source), source: source, script: scriptID, intern: intern, peepholeDisabled: peepholeDisabled}
	c.pushScope(kindScript, "")
	c.advance()
	for !c.check(token.EOF) {
		c.declaration()
	}
	fn := c.endFunction()
	if len(c.errors) > 0 {
		return nil, c.errors
	}
	return fn, nil
}

func (c *Compiler) pushScope(kind funcKind, name string) {
	var namePtr *string
	if kind == kindFunction {
		n := name
		namePtr = &n
	}
	var scriptPtr *string
	if kind == kindScript {
		s := c.script
		scriptPtr = &s
	}
	fn := value.NewFunc(namePtr, scriptPtr, 0, &value.ByteCode{})
	c.scope = &scope{enclosing: c.scope, fn: fn}
	c.scope.kind = kind
}

// endFunction emits the implicit `none; return` every function body
// falls through to when control reaches its end without an explicit
// return, then pops back to the enclosing scope.
func (c *Compiler) endFunction() *value.Func {
	c.emit(opcode.None)
	c.emit(opcode.Return)
	fn := c.scope.fn
	c.scope = c.scope.enclosing
	return fn
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lx.Next()
		if c.current.Kind != token.ILLEGAL {
			break
		}
		c.errorAt(c.current, "Illegal token `"+c.current.Text+"`.")
	}
}

func (c *Compiler) check(k token.Kind) bool { return c.current.Kind == k }

func (c *Compiler) match(k token.Kind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(k token.Kind, msg string) {
	if c.current.Kind == k {
		c.advance()
		return
	}
	c.errorAt(c.current, msg)
}

// errorAt records one diagnostic. Per the single-error policy, only the
// first error of a compilation is kept: panicked is set so parsing can
// resynchronize at the next statement boundary, and every later error is
// dropped, so one syntax mistake never produces a cascade of confusing
// follow-on errors.
func (c *Compiler) errorAt(t token.Token, msg string) {
	if c.panicked || len(c.errors) > 0 {
		return
	}
	c.panicked = true
	c.errors = append(c.errors, &Error{Row: t.Row, Column: t.Column, Message: msg, Line: sourceLine(c.source, t.Row)})
}

func (c *Compiler) error(msg string) { c.errorAt(c.previous, msg) }

func sourceLine(source string, row int) string {
	lines := strings.Split(source, "\n")
	if row-1 < 0 || row-1 >= len(lines) {
		return ""
	}
	return lines[row-1]
}

// --- emission -----------------------------------------------------------

func (c *Compiler) emitByte(b byte) {
	bc := c.scope.fn.Code
	bc.Instructions = append(bc.Instructions, b)
	bc.Lines = append(bc.Lines, c.previous.Row)
}

// emit appends op with no operand, then runs the peephole rewriter over
// the tail of the instruction stream so fusions (POP+POP, CALL+RETURN,
// CMP+JUMP) are applied as soon as the pattern completes.
func (c *Compiler) emit(op opcode.Opcode) {
	c.emitByte(byte(op))
	c.peephole()
}

func (c *Compiler) emitShort(op opcode.Opcode, operand uint16) {
	c.emitByte(byte(op))
	c.emitByte(byte(operand >> 8))
	c.emitByte(byte(operand))
	c.peephole()
}

func (c *Compiler) emitOne(op opcode.Opcode, operand byte) {
	c.emitByte(byte(op))
	c.emitByte(operand)
	c.peephole()
}

func (c *Compiler) emitTwo(op opcode.Opcode, a, b byte) {
	c.emitByte(byte(op))
	c.emitByte(a)
	c.emitByte(b)
	c.peephole()
}

// writeConstant appends val to the current function's constant pool and
// emits a CONSTANT instruction loading it.
func (c *Compiler) writeConstant(val value.Value) {
	idx := c.addConstant(val)
	c.emitShort(opcode.Constant, idx)
}

func (c *Compiler) addConstant(val value.Value) uint16 {
	value.Reference(val)
	bc := c.scope.fn.Code
	bc.Constants = append(bc.Constants, val)
	return uint16(len(bc.Constants) - 1)
}

func (c *Compiler) identConstant(name string) uint16 {
	return c.addConstant(value.StringValue(c.intern.InternString(name)))
}

func (c *Compiler) code() []byte { return c.scope.fn.Code.Instructions }

// boundary marks the current instruction offset as a peephole reset
// point: a jump target or loop head that no fusion may look backward
// across, so a fused comparison or POP merge never straddles a point
// another jump lands on.
func (c *Compiler) boundary() {
	c.peepholeBoundary = len(c.code())
}

// --- jumps --------------------------------------------------------------

func (c *Compiler) emitJump(op opcode.Opcode) int {
	c.emitByte(byte(op))
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.code()) - 2
}

func (c *Compiler) patchJump(at int) {
	offset := len(c.code()) - at - 2
	if offset > 0xffff {
		c.error("Jump offset too large.")
		return
	}
	code := c.code()
	code[at] = byte(offset >> 8)
	code[at+1] = byte(offset)
	c.boundary()
}

func (c *Compiler) emitLoop(start int) {
	c.emit(opcode.Loop)
	offset := len(c.code()) - start + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
	c.boundary()
}

func pushJump(list *pendingJump, at, depth int) *pendingJump {
	return &pendingJump{at: at, depth: depth, next: list}
}

func (c *Compiler) freeJumps(list *pendingJump) {
	for list != nil {
		c.patchJump(list.at)
		list = list.next
	}
}

// patchJumpList drains pending break jumps whose recorded depth belongs
// to the loop that just finished (and any loop nested inside it that
// has since been popped), leaving breaks targeting an outer loop still
// pending -- mirroring the source's patch_jump_list exactly so nested
// loops each patch only their own breaks.
func (c *Compiler) patchJumpList() {
	for c.breaks != nil {
		depth := 1
		if c.loop != nil {
			depth = c.loop.depth + 1
		}
		if c.breaks.depth < depth {
			break
		}
		c.patchJump(c.breaks.at)
		c.breaks = c.breaks.next
	}
}

// --- scoping & locals -----------------------------------------------------

func (c *Compiler) beginScope() { c.scope.depth++ }

func (c *Compiler) endScope() {
	s := c.scope
	s.depth--
	for len(s.locals) > 0 && s.locals[len(s.locals)-1].depth > s.depth {
		c.emit(opcode.Pop)
		s.locals = s.locals[:len(s.locals)-1]
	}
}

// pushHiddenLocal reserves a stack slot the user program can't name
// directly (iterate/switch/for use these for loop state). The value it
// occupies must already be on the stack when this is called.
func (c *Compiler) pushHiddenLocal() byte {
	s := c.scope
	if len(s.locals) >= 255 {
		c.error("Too many local variables in scope.")
		return 0
	}
	idx := byte(len(s.locals))
	s.locals = append(s.locals, local{depth: s.depth})
	return idx
}

func (c *Compiler) declareLocal(name string) {
	s := c.scope
	for i := len(s.locals) - 1; i >= 0; i-- {
		l := s.locals[i]
		if l.depth != -1 && l.depth < s.depth {
			break
		}
		if l.name == name {
			c.error(fmt.Sprintf("Variable `%s` already exists in this scope.", name))
		}
	}
	if len(s.locals) >= 255 {
		c.error("Too many local variables in scope.")
		return
	}
	s.locals = append(s.locals, local{name: name, depth: -1})
}

// variable consumes an identifier token and either declares it as a
// local (non-zero scope depth) or returns its name's constant-pool
// index for a global definition.
func (c *Compiler) variable(errMsg string) uint16 {
	c.consume(token.IDENT, errMsg)
	name := c.previous.Text
	if c.scope.depth == 0 {
		return c.identConstant(name)
	}
	c.declareLocal(name)
	return 0
}

func (c *Compiler) localInitialize() {
	if c.scope.depth == 0 {
		return
	}
	c.scope.locals[len(c.scope.locals)-1].depth = c.scope.depth
}

func (c *Compiler) finalizeVariable(global uint16) {
	if c.scope.depth > 0 {
		c.localInitialize()
		return
	}
	c.emitShort(opcode.DefineGlobal, global)
}

func (c *Compiler) resolveLocal(name string) int {
	s := c.scope
	for i := len(s.locals) - 1; i >= 0; i-- {
		if s.locals[i].name == name {
			if s.locals[i].depth == -1 {
				c.error(fmt.Sprintf("Local variable `%s` referenced before assignment.", name))
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var get, set opcode.Opcode
	var idx int
	if l := c.resolveLocal(name); l != -1 {
		get, set, idx = opcode.GetLocal, opcode.SetLocal, l
	} else {
		get, set = opcode.GetGlobal, opcode.SetGlobal
		idx = int(c.identConstant(name))
	}
	if canAssign && c.match(token.ASSIGN) {
		c.expression()
		c.emitVarOp(set, idx)
	} else {
		c.emitVarOp(get, idx)
	}
}

// emitVarOp emits a variable get/set using the right operand width:
// locals are a single-byte slot index, globals a 2-byte constant pool
// index.
func (c *Compiler) emitVarOp(op opcode.Opcode, idx int) {
	if opcode.OperandWidth(op) == 1 {
		c.emitOne(op, byte(idx))
	} else {
		c.emitShort(op, uint16(idx))
	}
}

// --- declarations ---------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(token.LET):
		c.letDeclaration()
	case c.match(token.FUNCTION):
		c.functionDeclaration()
	default:
		c.statement()
	}
	if c.panicked {
		c.synchronize()
	}
}

func (c *Compiler) letDeclaration() {
	global := c.variable("Expected variable name.")
	c.consume(token.ASSIGN, "Expected '=' after variable.")
	c.expression()
	c.finalizeVariable(global)
}

func (c *Compiler) functionDeclaration() {
	global := c.variable("Expected function name.")
	c.localInitialize()
	name := c.previous.Text
	fn := c.compileFunction(name)
	c.writeConstant(value.Value{Kind: value.KindFunc, Fn: fn})
	c.finalizeVariable(global)
}

// compileFunction parses a function's parameter list and body in a
// fresh nested scope, returning the completed Func.
func (c *Compiler) compileFunction(name string) *value.Func {
	c.pushScope(kindFunction, name)
	c.beginScope()

	c.consume(token.LEFT_PAREN, "Expected '(' after function name.")
	if !c.check(token.RIGHT_PAREN) {
		for {
			c.scope.fn.Arity++
			if c.scope.fn.Arity > 255 {
				c.error("Can't have more than 255 function parameters.")
			}
			p := c.variable("Expected parameter name.")
			c.finalizeVariable(p)
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RIGHT_PAREN, "Expected ')' after function parameters.")

	for !c.check(token.END) && !c.check(token.EOF) {
		c.declaration()
	}
	c.endScope()
	c.consume(token.END, "Expected 'end' after function body.")

	return c.endFunction()
}

func (c *Compiler) block() {
	c.beginScope()
	for !c.check(token.END) && !c.check(token.EOF) {
		c.declaration()
	}
	c.endScope()
}

func (c *Compiler) synchronize() {
	c.panicked = false
	for !c.check(token.EOF) {
		switch c.current.Kind {
		case token.LET, token.FUNCTION, token.IF, token.WHILE, token.FOR,
			token.ITERATE, token.SWITCH, token.TRY, token.RETURN, token.END:
			return
		}
		c.advance()
	}
}

func parseIntLiteral(text string) int64 {
	n, _ := strconv.ParseInt(text, 10, 64)
	return n
}

func parseFloatLiteral(text string) float64 {
	f, _ := strconv.ParseFloat(text, 64)
	return f
}
