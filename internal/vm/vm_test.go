package vm

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"

	"loxvm/internal/compiler"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and
// returns everything written to it. OpPrint writes directly to
// fmt.Println, so this is the only way to observe it from outside.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	old := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	w.Close()
	var sb strings.Builder
	scanner := bufio.NewReader(r)
	io.Copy(&sb, scanner)
	return sb.String()
}

func run(t *testing.T, source string) (string, error) {
	t.Helper()
	var runErr error
	out := captureStdout(t, func() {
		c, err := compiler.New(source).Compile()
		if err != nil {
			runErr = err
			return
		}
		runErr = New().Interpret(c)
	})
	return out, runErr
}

func TestArithmeticPrecedence(t *testing.T) {
	out, err := run(t, `print 1 + 2 * 3;`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "7\n" {
		t.Fatalf("got %q, want %q", out, "7\n")
	}
}

func TestStringConcatenation(t *testing.T) {
	out, err := run(t, `print "foo" + "bar";`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "foobar\n" {
		t.Fatalf("got %q, want %q", out, "foobar\n")
	}
}

func TestBlockScoping(t *testing.T) {
	out, err := run(t, `
		var a = 1;
		{
			var a = 2;
			print a;
		}
		print a;
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "2\n1\n" {
		t.Fatalf("got %q, want %q", out, "2\n1\n")
	}
}

func TestWhileLoop(t *testing.T) {
	out, err := run(t, `
		var x = 0;
		while (x < 3) {
			print x;
			x = x + 1;
		}
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "0\n1\n2\n" {
		t.Fatalf("got %q, want %q", out, "0\n1\n2\n")
	}
}

func TestAndOrShortCircuit(t *testing.T) {
	out, err := run(t, `if (true and false) print "T"; else print "F";`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "F\n" {
		t.Fatalf("got %q, want %q", out, "F\n")
	}

	out, err = run(t, `if (false or "yes") print "T"; else print "F";`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "T\n" {
		t.Fatalf("got %q, want %q", out, "T\n")
	}
}

func TestUninitializedVarIsNil(t *testing.T) {
	out, err := run(t, `var a; print a;`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "nil\n" {
		t.Fatalf("got %q, want %q", out, "nil\n")
	}
}

func TestZeroIsFalsey(t *testing.T) {
	out, err := run(t, `if (0) print "T"; else print "F";`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "F\n" {
		t.Fatalf("got %q, want %q", out, "F\n")
	}
}

func TestNegateNonNumberIsRuntimeError(t *testing.T) {
	_, err := run(t, `-"x";`)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if !strings.Contains(err.Error(), "Operand must be a number.") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestAssignToUndefinedGlobalIsRuntimeError(t *testing.T) {
	_, err := run(t, `x = 1;`)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if !strings.Contains(err.Error(), "Undefined variable 'x'.") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestStackOverflowIsRuntimeError(t *testing.T) {
	// StackMax locals fill every slot; the extra expression statement
	// after them needs one more slot than the stack has. The locals are
	// left uninitialised (nil) so they use no constants and the chunk
	// stays under the constant pool cap.
	var src strings.Builder
	src.WriteString("{\n")
	for i := 0; i < StackMax; i++ {
		src.WriteString("var v" + strconv.Itoa(i) + ";\n")
	}
	src.WriteString("1;\n")
	src.WriteString("}\n")

	_, err := run(t, src.String())
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if !strings.Contains(err.Error(), "Stack overflow.") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestGlobalsPersistAcrossInterpretCalls(t *testing.T) {
	machine := New()
	compileAndRun := func(source string) string {
		return captureStdout(t, func() {
			c, err := compiler.New(source).Compile()
			if err != nil {
				t.Fatalf("compile error: %v", err)
			}
			if err := machine.Interpret(c); err != nil {
				t.Fatalf("runtime error: %v", err)
			}
		})
	}

	compileAndRun(`var counter = 1;`)
	out := compileAndRun(`print counter;`)
	if out != "1\n" {
		t.Fatalf("got %q, want %q", out, "1\n")
	}
}
