package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"loxvm/internal/chunk"
	"loxvm/internal/compiler"
	"loxvm/internal/vm"
)

type runCmd struct {
	cacheKind string
	cacheDSN  string
	logLevel  string
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "compile and execute a script file" }
func (*runCmd) Usage() string {
	return "run [-cache sqlite|dynamodb|off] [-cache-dsn ...] [-log debug|trace|off] <file>\n"
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.cacheKind, "cache", "off", "compile cache backend: sqlite, dynamodb, or off")
	f.StringVar(&c.cacheDSN, "cache-dsn", "", "sqlite file path, or dynamodb table name")
	f.StringVar(&c.logLevel, "log", "off", "log level: debug, trace, or off")
}

func (c *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "run: expected exactly one source file")
		return subcommands.ExitUsageError
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return subcommands.ExitFailure
	}

	logger := newLogger(c.logLevel)
	backend, err := openBackend(ctx, c.cacheKind, c.cacheDSN, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return subcommands.ExitFailure
	}
	if backend != nil {
		defer backend.Close()
	}

	compiled, err := compileCached(ctx, backend, string(data), func(source string) (*chunk.Chunk, error) {
		return compiler.New(source, compiler.WithLogger(logger)).Compile()
	}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	machine := vm.New(vm.WithLogger(logger))
	if err := machine.Interpret(compiled); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
