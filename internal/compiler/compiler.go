// Package compiler is the single-pass Pratt compiler: it scans,
// parses with operator precedence, and emits bytecode directly into a
// Chunk as it goes. There is no intermediate AST — every prefix/infix
// parse function is also the code generator for the construct it
// recognizes.
package compiler

import (
	"fmt"
	"math"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"loxvm/internal/chunk"
	"loxvm/internal/lexer"
	"loxvm/internal/token"
	"loxvm/internal/value"
)

// MaxLocals bounds the local-variable stack: a local's slot index
// doubles as its runtime stack position, so it must fit in one byte.
const MaxLocals = 256

type local struct {
	name string
	// depth == -1 means "declared but not yet initialised" — used to
	// forbid `var x = x;` from resolving to its own slot.
	depth int
}

// precedence climbs from loosest to tightest binding.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // reserved, kept for ladder parity
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type rule struct {
	prefix, infix parseFn
	prec          precedence
}

var rules map[token.Type]rule

func init() {
	rules = map[token.Type]rule{
		token.LEFT_PAREN:    {(*Compiler).grouping, nil, precNone},
		token.MINUS:         {(*Compiler).unary, (*Compiler).binary, precTerm},
		token.PLUS:          {nil, (*Compiler).binary, precTerm},
		token.SLASH:         {nil, (*Compiler).binary, precFactor},
		token.STAR:          {nil, (*Compiler).binary, precFactor},
		token.BANG:          {(*Compiler).unary, nil, precNone},
		token.BANG_EQUAL:    {nil, (*Compiler).binary, precEquality},
		token.EQUAL_EQUAL:   {nil, (*Compiler).binary, precEquality},
		token.GREATER:       {nil, (*Compiler).binary, precComparison},
		token.GREATER_EQUAL: {nil, (*Compiler).binary, precComparison},
		token.LESS:          {nil, (*Compiler).binary, precComparison},
		token.LESS_EQUAL:    {nil, (*Compiler).binary, precComparison},
		token.IDENTIFIER:    {(*Compiler).variable, nil, precNone},
		token.STRING:        {(*Compiler).string_, nil, precNone},
		token.NUMBER:        {(*Compiler).number, nil, precNone},
		token.AND:           {nil, (*Compiler).and_, precAnd},
		token.OR:            {nil, (*Compiler).or_, precOr},
		token.FALSE:         {(*Compiler).literal, nil, precNone},
		token.TRUE:          {(*Compiler).literal, nil, precNone},
		token.NIL:           {(*Compiler).literal, nil, precNone},
	}
}

func getRule(t token.Type) rule {
	if r, ok := rules[t]; ok {
		return r
	}
	return rule{}
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger attaches a logger for Debug-level compile tracing (the
// final disassembly of a successful compile, plus each diagnostic as
// it's raised). A nil logger, the default, keeps the compiler silent.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// Compiler is the fused parser/emitter. Construct with New and call
// Compile once.
type Compiler struct {
	scanner *lexer.Lexer
	chunk   *chunk.Chunk

	previous, current token.Token
	hadError          bool
	panicMode         bool
	errors            *multierror.Error

	locals     []local
	scopeDepth int

	logger *logrus.Logger
}

func New(source string, opts ...Option) *Compiler {
	c := &Compiler{
		scanner: lexer.New(source),
		chunk:   chunk.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile runs the scan→parse→emit pipeline to completion and returns
// the finished Chunk, or no chunk and the accumulated diagnostics if
// any compile error occurred.
func (c *Compiler) Compile() (*chunk.Chunk, error) {
	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	c.endCompiler()

	if c.hadError {
		return nil, c.errors.ErrorOrNil()
	}
	return c.chunk, nil
}

func (c *Compiler) endCompiler() {
	c.emitByte(byte(chunk.OpReturn))
	if c.logger != nil && !c.hadError {
		c.logger.WithField("chunk", c.chunk.ID).Debug("\n" + c.chunk.Disassemble("script"))
	}
}

/* declarations and statements */

func (c *Compiler) declaration() {
	if c.match(token.VAR) {
		c.varDeclaration()
	} else {
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(token.EQUAL) {
		c.expression()
	} else {
		c.emitByte(byte(chunk.OpNil))
	}
	c.consume(token.SEMICOLON, "Expect ';' after variable declaration.")

	c.defineVariable(global)
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.printStatement()
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.LEFT_BRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after value.")
	c.emitByte(byte(chunk.OpPrint))
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after expression.")
	c.emitByte(byte(chunk.OpPop))
}

func (c *Compiler) block() {
	for !c.check(token.RIGHT_BRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RIGHT_BRACE, "Expect '}' after block.")
}

func (c *Compiler) ifStatement() {
	c.consume(token.LEFT_PAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitByte(byte(chunk.OpPop))
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitByte(byte(chunk.OpPop))

	if c.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.chunk.Size()
	c.consume(token.LEFT_PAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitByte(byte(chunk.OpPop))
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitByte(byte(chunk.OpPop))
}

/* expressions */

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefixRule := getRule(c.previous.Type).prefix
	if prefixRule == nil {
		c.errorAtPrevious("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefixRule(c, canAssign)

	for prec <= getRule(c.current.Type).prec {
		c.advance()
		infixRule := getRule(c.previous.Type).infix
		infixRule(c, canAssign)
	}

	if canAssign && c.match(token.EQUAL) {
		c.errorAtPrevious("Invalid assignment target.")
	}
}

func (c *Compiler) number(_ bool) {
	n, err := strconv.ParseFloat(c.previous.Lexeme, 64)
	if err != nil {
		c.hadError = true
		c.errors = multierror.Append(c.errors, fmt.Errorf("[line %d] %w", c.previous.Line, err))
	}
	c.emitConstant(value.NewNumber(n))
}

func (c *Compiler) string_(_ bool) {
	lexeme := c.previous.Lexeme
	// Strip the surrounding quotes the scanner keeps in the lexeme.
	c.emitConstant(value.NewString(lexeme[1 : len(lexeme)-1]))
}

func (c *Compiler) literal(_ bool) {
	switch c.previous.Type {
	case token.FALSE:
		c.emitByte(byte(chunk.OpFalse))
	case token.TRUE:
		c.emitByte(byte(chunk.OpTrue))
	case token.NIL:
		c.emitByte(byte(chunk.OpNil))
	}
}

func (c *Compiler) grouping(_ bool) {
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expect ')' after expression.")
}

func (c *Compiler) unary(_ bool) {
	opType := c.previous.Type
	c.parsePrecedence(precUnary)
	switch opType {
	case token.BANG:
		c.emitByte(byte(chunk.OpNot))
	case token.MINUS:
		c.emitByte(byte(chunk.OpNegate))
	}
}

func (c *Compiler) binary(_ bool) {
	opType := c.previous.Type
	r := getRule(opType)
	c.parsePrecedence(r.prec + 1)

	switch opType {
	case token.BANG_EQUAL:
		c.emitBytes(byte(chunk.OpEqual), byte(chunk.OpNot))
	case token.EQUAL_EQUAL:
		c.emitByte(byte(chunk.OpEqual))
	case token.GREATER:
		c.emitByte(byte(chunk.OpGreater))
	case token.GREATER_EQUAL:
		c.emitBytes(byte(chunk.OpLess), byte(chunk.OpNot))
	case token.LESS:
		c.emitByte(byte(chunk.OpLess))
	case token.LESS_EQUAL:
		c.emitBytes(byte(chunk.OpGreater), byte(chunk.OpNot))
	case token.PLUS:
		c.emitByte(byte(chunk.OpAdd))
	case token.MINUS:
		c.emitByte(byte(chunk.OpSubtract))
	case token.STAR:
		c.emitByte(byte(chunk.OpMultiply))
	case token.SLASH:
		c.emitByte(byte(chunk.OpDivide))
	}
}

func (c *Compiler) and_(_ bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitByte(byte(chunk.OpPop))
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

// or_ emits the corrected jump sequence: jump past the right operand
// only if the left one is already truthy, otherwise fall through,
// discard it, and evaluate the right operand.
func (c *Compiler) or_(_ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)

	c.patchJump(elseJump)
	c.emitByte(byte(chunk.OpPop))

	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

func (c *Compiler) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp chunk.OpCode
	arg := c.resolveLocal(name.Lexeme)
	if arg != -1 {
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if canAssign && c.match(token.EQUAL) {
		c.expression()
		c.emitBytes(byte(setOp), byte(arg))
	} else {
		c.emitBytes(byte(getOp), byte(arg))
	}
}

/* locals and scopes */

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		c.emitByte(byte(chunk.OpPop))
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) parseVariable(errMsg string) byte {
	c.consume(token.IDENTIFIER, errMsg)

	c.declareVariable()
	if c.scopeDepth > 0 {
		return 0 // Locals aren't looked up by constant index.
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) declareVariable() {
	if c.scopeDepth == 0 {
		return
	}
	name := c.previous
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name.Lexeme {
			c.errorAtPrevious("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name token.Token) {
	if len(c.locals) >= MaxLocals {
		c.errorAtPrevious("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, local{name: name.Lexeme, depth: -1})
}

func (c *Compiler) defineVariable(global byte) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitBytes(byte(chunk.OpDefineGlobal), global)
}

func (c *Compiler) markInitialized() {
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

func (c *Compiler) resolveLocal(name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.name == name {
			if l.depth == -1 {
				c.errorAtPrevious("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) identifierConstant(name token.Token) byte {
	return c.makeConstant(value.NewString(name.Lexeme))
}

/* emitters */

func (c *Compiler) emitByte(b byte) {
	c.chunk.Write(b, c.previous.Line)
}

func (c *Compiler) emitBytes(bs ...byte) {
	for _, b := range bs {
		c.emitByte(b)
	}
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitBytes(byte(chunk.OpConstant), c.makeConstant(v))
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx := c.chunk.AddConstant(v)
	if idx >= chunk.MaxConstants {
		c.errorAtPrevious("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

// emitJump emits a two-byte placeholder operand and returns its
// offset, to be filled in later by patchJump.
func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitBytes(byte(op), 0xff, 0xff)
	return c.chunk.Size() - 2
}

func (c *Compiler) patchJump(offset int) {
	// -2 to account for the jump offset bytes themselves.
	jump := c.chunk.Size() - offset - 2
	if jump > math.MaxUint16 {
		c.errorAtPrevious("Too much code to jump over.")
		return
	}
	c.chunk.Patch(offset, byte(jump>>8&0xff))
	c.chunk.Patch(offset+1, byte(jump&0xff))
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitByte(byte(chunk.OpLoop))

	offset := c.chunk.Size() - loopStart + 2
	if offset > math.MaxUint16 {
		c.errorAtPrevious("Loop body too large.")
		return
	}
	c.emitBytes(byte(offset>>8&0xff), byte(offset&0xff))
}

/* token stream plumbing */

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.NextToken()
		if c.current.Type != token.ERROR {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) consume(t token.Type, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) check(t token.Type) bool {
	return c.current.Type == t
}

func (c *Compiler) match(t token.Type) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

/* error handling */

func (c *Compiler) synchronize() {
	c.panicMode = false

	for c.current.Type != token.EOF {
		if c.previous.Type == token.SEMICOLON {
			return
		}
		switch c.current.Type {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		c.advance()
	}
}

func (c *Compiler) errorAtCurrent(msg string)  { c.errorAt(c.current, msg) }
func (c *Compiler) errorAtPrevious(msg string) { c.errorAt(c.previous, msg) }

func (c *Compiler) errorAt(tok token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	var where string
	switch tok.Type {
	case token.EOF:
		where = " at end"
	case token.ERROR:
		where = ""
	case token.IDENTIFIER, token.NUMBER, token.STRING:
		// These carry the interesting text in their lexeme; the
		// generic "identifier"/"number"/"string" from Display alone
		// wouldn't tell the reader which one.
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	default:
		where = fmt.Sprintf(" at %s", tok.Type.Display())
	}

	err := fmt.Errorf("[line %d] Error%s: %s", tok.Line, where, msg)
	c.errors = multierror.Append(c.errors, err)
	if c.logger != nil {
		c.logger.WithField("chunk", c.chunk.ID).Debug(err.Error())
	}
}
