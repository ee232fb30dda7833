package chunk

import (
	"strings"
	"testing"

	"loxvm/internal/value"
)

func TestWriteAndDisassembleSimpleReturn(t *testing.T) {
	c := New()
	c.Write(byte(OpReturn), 1)

	out := c.Disassemble("test")
	if !strings.Contains(out, "OP_RETURN") {
		t.Fatalf("disassembly missing OP_RETURN: %s", out)
	}
	if !strings.Contains(out, "== test ==") {
		t.Fatalf("disassembly missing header: %s", out)
	}
}

func TestConstantInstructionRendersValue(t *testing.T) {
	c := New()
	idx := c.AddConstant(value.NewNumber(42))
	c.Write(byte(OpConstant), 1)
	c.Write(byte(idx), 1)

	out := c.Disassemble("test")
	if !strings.Contains(out, "OP_CONSTANT") || !strings.Contains(out, "42") {
		t.Fatalf("disassembly missing constant operand: %s", out)
	}
}

func TestJumpInstructionComputesTarget(t *testing.T) {
	c := New()
	c.Write(byte(OpJumpIfFalse), 1)
	c.Write(0, 1)
	c.Write(0, 1)
	c.Patch(1, 0)
	c.Patch(2, 3)
	c.Write(byte(OpPop), 1)
	c.Write(byte(OpPop), 1)
	c.Write(byte(OpPop), 1)

	out := c.Disassemble("test")
	if !strings.Contains(out, "3 -> 6") {
		t.Fatalf("unexpected jump target rendering: %s", out)
	}
}

func TestEachChunkGetsAUniqueID(t *testing.T) {
	a, b := New(), New()
	if a.ID == b.ID {
		t.Fatal("expected distinct chunk IDs")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := New()
	idx := c.AddConstant(value.NewString("hi"))
	c.Write(byte(OpConstant), 5)
	c.Write(byte(idx), 5)
	c.Write(byte(OpPrint), 5)
	c.Write(byte(OpReturn), 6)

	data, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.ID != c.ID {
		t.Error("decoded chunk lost its ID")
	}
	if string(decoded.Code) != string(c.Code) {
		t.Error("decoded code mismatch")
	}
	if len(decoded.Constants) != 1 || decoded.Constants[0].Str != "hi" {
		t.Error("decoded constants mismatch")
	}
}
