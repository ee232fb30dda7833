// Package value defines the tagged union of script values shared by
// the compiler and the VM: nil, boolean, number, and string.
package value

import "strconv"

type Type int

const (
	Nil Type = iota
	Bool
	Number
	String
)

func (t Type) String() string {
	switch t {
	case Nil:
		return "nil"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a compact tagged union. Numbers and booleans are inline;
// strings are owned, immutable Go strings.
type Value struct {
	Type   Type
	Bool   bool
	Number float64
	Str    string
}

func NewNil() Value              { return Value{Type: Nil} }
func NewBool(b bool) Value       { return Value{Type: Bool, Bool: b} }
func NewNumber(n float64) Value  { return Value{Type: Number, Number: n} }
func NewString(s string) Value   { return Value{Type: String, Str: s} }

// IsNumber, IsString report the value's tag without a type switch at
// call sites.
func (v Value) IsNumber() bool { return v.Type == Number }
func (v Value) IsString() bool { return v.Type == String }

// Truthy implements the source's coercion rule: nil, false, and the
// number 0.0 are falsey; everything else — including "" — is truthy.
// This diverges from canonical Lox (where only nil/false are falsey)
// but matches the behavior this spec preserves on purpose.
func (v Value) Truthy() bool {
	switch v.Type {
	case Nil:
		return false
	case Bool:
		return v.Bool
	case Number:
		return v.Number != 0
	default:
		return true
	}
}

// Equal implements Value equality: same tag and same payload.
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case Nil:
		return true
	case Bool:
		return a.Bool == b.Bool
	case Number:
		return a.Number == b.Number
	case String:
		return a.Str == b.Str
	default:
		return false
	}
}

// String renders the human form used by the Print opcode and by the
// disassembler's constant column: shortest round-trip decimal for
// numbers, true/false for booleans, nil for Nil, raw bytes for strings.
func (v Value) String() string {
	switch v.Type {
	case Nil:
		return "nil"
	case Bool:
		if v.Bool {
			return "true"
		}
		return "false"
	case Number:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case String:
		return v.Str
	default:
		return "<invalid value>"
	}
}
