// Package chunk is the bytecode container: an append-only byte
// buffer, a parallel line table, and a constant pool, plus the
// disassembler used to render it for humans.
package chunk

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"loxvm/internal/value"
)

type OpCode byte

const (
	OpConstant OpCode = iota
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpDefineGlobal
	OpSetGlobal
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump
	OpJumpIfFalse
	OpLoop
	OpReturn
)

var opNames = map[OpCode]string{
	OpConstant:     "OP_CONSTANT",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpLoop:         "OP_LOOP",
	OpReturn:       "OP_RETURN",
}

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OP_UNKNOWN(%d)", byte(op))
}

// MaxConstants is the constant pool's capacity: constants are indexed
// by a single byte operand.
const MaxConstants = 256

// Chunk is a single compiled unit: bytecode, line numbers, constants.
// It is built monotonically by the compiler, then handed to the VM
// for execution.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []value.Value

	// ID correlates a Chunk across disassembly, logs, and the
	// bytecode cache. It has no effect on compilation or execution.
	ID uuid.UUID
}

func New() *Chunk {
	return &Chunk{ID: uuid.New()}
}

// Write appends one byte with its source line.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// AddConstant appends v to the constant pool and returns its index.
// The caller is responsible for rejecting an index that would not fit
// in a single byte operand (see MaxConstants).
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Patch overwrites a single previously-reserved byte. Used only for
// back-patching forward jumps once their target is known.
func (c *Chunk) Patch(offset int, b byte) {
	c.Code[offset] = b
}

// Size is the current length of the code buffer.
func (c *Chunk) Size() int { return len(c.Code) }

// Disassemble renders the whole chunk in the format described by the
// spec's external-interfaces section:
//
//	OFFSET[4d] LINE[4d|'   |'] NAME [OPERANDS]
func (c *Chunk) Disassemble(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = c.disassembleInstruction(&b, offset)
	}
	return b.String()
}

func (c *Chunk) disassembleInstruction(b *strings.Builder, offset int) int {
	fmt.Fprintf(b, "%04d ", offset)
	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		fmt.Fprint(b, "   | ")
	} else {
		fmt.Fprintf(b, "%4d ", c.Lines[offset])
	}

	op := OpCode(c.Code[offset])
	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal:
		return c.constantInstruction(b, op, offset)
	case OpGetLocal, OpSetLocal:
		return c.byteInstruction(b, op, offset)
	case OpJump, OpJumpIfFalse, OpLoop:
		return c.jumpInstruction(b, op, offset)
	default:
		fmt.Fprintf(b, "%s\n", op)
		return offset + 1
	}
}

func (c *Chunk) constantInstruction(b *strings.Builder, op OpCode, offset int) int {
	idx := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d\t%s\n", op, idx, c.Constants[idx])
	return offset + 2
}

func (c *Chunk) byteInstruction(b *strings.Builder, op OpCode, offset int) int {
	slot := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d\n", op, slot)
	return offset + 2
}

func (c *Chunk) jumpInstruction(b *strings.Builder, op OpCode, offset int) int {
	jump := int(uint16(c.Code[offset+1])<<8 | uint16(c.Code[offset+2]))
	target := offset + 3
	if op == OpLoop {
		target -= jump
	} else {
		target += jump
	}
	fmt.Fprintf(b, "%-16s %4d -> %d\n", op, jump, target)
	return offset + 3
}
