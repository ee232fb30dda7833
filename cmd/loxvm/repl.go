package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"

	"loxvm/internal/compiler"
	"loxvm/internal/vm"
)

type replCmd struct {
	logLevel string
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "start an interactive session" }
func (*replCmd) Usage() string    { return "repl [-log debug|trace|off]\n" }

func (c *replCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.logLevel, "log", "off", "log level: debug, trace, or off")
}

func (c *replCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rl, err := readline.New(">>> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "repl: %v\n", err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	logger := newLogger(c.logLevel)
	machine := vm.New(vm.WithLogger(logger))

	var buffer strings.Builder
	for {
		rl.SetPrompt(">>> ")
		if buffer.Len() > 0 {
			rl.SetPrompt("... ")
		}

		line, err := rl.Readline()
		if err != nil { // io.EOF (Ctrl-D) or readline.ErrInterrupt (Ctrl-C)
			return subcommands.ExitSuccess
		}
		if strings.TrimSpace(line) == "exit" && buffer.Len() == 0 {
			return subcommands.ExitSuccess
		}

		if buffer.Len() > 0 {
			buffer.WriteString("\n")
		}
		buffer.WriteString(line)

		if !bracesBalanced(buffer.String()) {
			continue
		}

		source := buffer.String()
		buffer.Reset()

		chunkResult, err := compiler.New(source, compiler.WithLogger(logger)).Compile()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if err := machine.Interpret(chunkResult); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// bracesBalanced reports whether source has no unclosed '{' — the
// REPL keeps prompting for more lines until a block closes.
func bracesBalanced(source string) bool {
	depth := 0
	for _, r := range source {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		}
	}
	return depth <= 0
}
