// otrfrag reassembles and produces OTR message fragments.
//
// Usage:
//
//	otrfrag assemble [--tag HEX] [--input FILE]
//	otrfrag split [--piece-size N] [--format addressed|legacy] [--sender HEX] [--receiver HEX]
//	otrfrag serve [--config FILE]
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	initLogger(os.Stderr, false)
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// initLogger installs the process logger
func initLogger(w io.Writer, json bool) zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	if json {
		out = w
	}
	logger := zerolog.New(out).With().Timestamp().Str("app", "otrfrag").Logger()
	log.Logger = logger
	return logger
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return errors.New("missing command")
	}

	switch args[0] {
	case "assemble":
		return runAssemble(args[1:], stdin, stdout)
	case "split":
		return runSplit(args[1:], stdin, stdout)
	case "serve":
		return runServe(args[1:], stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// parseFlags parses args, treating --help as success
func parseFlags(flagSet *pflag.FlagSet, args []string) (bool, error) {
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Usage of %s:\n%s", flagSet.Name(), flagSet.FlagUsages())
			return false, nil
		}
		return false, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return false, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return true, nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `otrfrag - OTR message fragment tool

Commands:
  assemble   read wire messages line by line and print reassembled messages
  split      read one message from stdin and print its wire fragments
  serve      listen on TCP, UDP or QUIC and print reassembled messages

Run "otrfrag <command> --help" for command flags.
`)
}
