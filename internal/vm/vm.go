// Package vm executes a compiled Chunk on a fixed-size value stack.
// There is exactly one call frame: the script body itself, since the
// language has no functions or calls.
package vm

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"loxvm/internal/chunk"
	"loxvm/internal/value"
)

// StackMax bounds the value stack, matching the 256 local slots a
// single-byte operand can address. Temporaries share the same stack,
// so pushing past StackMax is reported as a runtime error (see push).
const StackMax = 256

// Option configures a VM.
type Option func(*VM)

// WithLogger attaches a logger that traces each executed instruction
// at Trace level. A nil logger, the default, keeps the VM silent.
func WithLogger(l *logrus.Logger) Option {
	return func(vm *VM) { vm.logger = l }
}

// VM is a stack machine over one Chunk at a time. It's safe to reuse
// across multiple Interpret calls (e.g. a REPL): globals persist,
// each call starts with a fresh stack.
type VM struct {
	chunk *chunk.Chunk
	ip    int

	stack    [StackMax]value.Value
	stackTop int

	globals map[string]value.Value

	logger *logrus.Logger
}

func New(opts ...Option) *VM {
	vm := &VM{globals: make(map[string]value.Value)}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Interpret runs c to completion, or until a runtime error occurs.
// Globals defined by a previous Interpret call on the same VM remain
// visible.
func (vm *VM) Interpret(c *chunk.Chunk) error {
	vm.chunk = c
	vm.ip = 0
	vm.stackTop = 0
	return vm.run()
}

// push stores v on top of the stack. It reports a runtime error
// instead of growing the stack: the stack is a fixed StackMax-slot
// array, and overflowing it is a language-level error, not a host bug.
func (vm *VM) push(v value.Value) error {
	if vm.stackTop >= StackMax {
		return vm.runtimeError("Stack overflow.")
	}
	vm.stack[vm.stackTop] = v
	vm.stackTop++
	return nil
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

// peek looks distance slots down from the top without popping; 0 is
// the top of the stack.
func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) readByte() byte {
	b := vm.chunk.Code[vm.ip]
	vm.ip++
	return b
}

func (vm *VM) readUint16() int {
	hi := vm.readByte()
	lo := vm.readByte()
	return int(hi)<<8 | int(lo)
}

func (vm *VM) readConstant() value.Value {
	return vm.chunk.Constants[vm.readByte()]
}

func (vm *VM) run() error {
	for {
		if vm.logger != nil {
			vm.traceStack()
		}

		op := chunk.OpCode(vm.readByte())
		switch op {
		case chunk.OpConstant:
			if err := vm.push(vm.readConstant()); err != nil {
				return err
			}

		case chunk.OpNil:
			if err := vm.push(value.NewNil()); err != nil {
				return err
			}
		case chunk.OpTrue:
			if err := vm.push(value.NewBool(true)); err != nil {
				return err
			}
		case chunk.OpFalse:
			if err := vm.push(value.NewBool(false)); err != nil {
				return err
			}

		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := vm.readByte()
			if err := vm.push(vm.stack[slot]); err != nil {
				return err
			}
		case chunk.OpSetLocal:
			slot := vm.readByte()
			vm.stack[slot] = vm.peek(0)

		case chunk.OpGetGlobal:
			name := vm.readConstant().Str
			v, ok := vm.globals[name]
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}
			if err := vm.push(v); err != nil {
				return err
			}
		case chunk.OpDefineGlobal:
			name := vm.readConstant().Str
			vm.globals[name] = vm.pop()
		case chunk.OpSetGlobal:
			name := vm.readConstant().Str
			if _, ok := vm.globals[name]; !ok {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}
			vm.globals[name] = vm.peek(0)

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			if err := vm.push(value.NewBool(value.Equal(a, b))); err != nil {
				return err
			}
		case chunk.OpGreater:
			if err := vm.binaryCompare(func(a, b float64) bool { return a > b }); err != nil {
				return err
			}
		case chunk.OpLess:
			if err := vm.binaryCompare(func(a, b float64) bool { return a < b }); err != nil {
				return err
			}

		case chunk.OpAdd:
			a, b := vm.peek(1), vm.peek(0)
			var result value.Value
			switch {
			case a.IsNumber() && b.IsNumber():
				vm.pop()
				vm.pop()
				result = value.NewNumber(a.Number + b.Number)
			case a.IsString() && b.IsString():
				vm.pop()
				vm.pop()
				result = value.NewString(a.Str + b.Str)
			default:
				return vm.runtimeError("Operands must be two numbers or two strings.")
			}
			if err := vm.push(result); err != nil {
				return err
			}
		case chunk.OpSubtract:
			if err := vm.binaryArith(func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case chunk.OpMultiply:
			if err := vm.binaryArith(func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case chunk.OpDivide:
			if err := vm.binaryArith(func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}

		case chunk.OpNot:
			if err := vm.push(value.NewBool(!vm.pop().Truthy())); err != nil {
				return err
			}
		case chunk.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			if err := vm.push(value.NewNumber(-vm.pop().Number)); err != nil {
				return err
			}

		case chunk.OpPrint:
			fmt.Println(vm.pop().String())

		case chunk.OpJump:
			offset := vm.readUint16()
			vm.ip += offset
		case chunk.OpJumpIfFalse:
			offset := vm.readUint16()
			if !vm.peek(0).Truthy() {
				vm.ip += offset
			}
		case chunk.OpLoop:
			offset := vm.readUint16()
			vm.ip -= offset

		case chunk.OpReturn:
			return nil

		default:
			return vm.runtimeError("unknown opcode %d", op)
		}
	}
}

func (vm *VM) binaryArith(op func(a, b float64) float64) error {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	return vm.push(value.NewNumber(op(a.Number, b.Number)))
}

func (vm *VM) binaryCompare(op func(a, b float64) bool) error {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	return vm.push(value.NewBool(op(a.Number, b.Number)))
}

// traceStack logs the current value stack, bottom to top, before the
// next instruction executes — the VM-side half of the disassembler's
// static trace.
func (vm *VM) traceStack() {
	fields := make([]string, vm.stackTop)
	for i := 0; i < vm.stackTop; i++ {
		fields[i] = vm.stack[i].String()
	}
	vm.logger.WithField("chunk", vm.chunk.ID).WithField("ip", vm.ip).Tracef("stack=%v", fields)
}

// runtimeError reports the source line of the instruction that was
// about to execute, then resets the stack: a runtime error aborts the
// current Interpret call outright, it does not attempt recovery.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	line := 0
	if vm.ip-1 >= 0 && vm.ip-1 < len(vm.chunk.Lines) {
		line = vm.chunk.Lines[vm.ip-1]
	}
	err := fmt.Errorf("[line %d] %s", line, msg)
	if vm.logger != nil {
		vm.logger.WithField("chunk", vm.chunk.ID).Error(err.Error())
	}
	vm.stackTop = 0
	return err
}
