// Command loxvm compiles and runs scripts through the bytecode VM. It
// wraps three subcommands — run, repl, disasm — plus flags selecting
// an optional compile cache and logging verbosity.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&replCmd{}, "")
	subcommands.Register(&disasmCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// newLogger builds the shared logger per the -log flag. "off" (the
// default) returns nil, meaning callers must skip logging entirely
// rather than configure a discarding logger — matching how the
// compiler and VM treat a nil *logrus.Logger as "don't trace".
func newLogger(level string) *logrus.Logger {
	if level == "" || level == "off" {
		return nil
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	switch level {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "trace":
		l.SetLevel(logrus.TraceLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
