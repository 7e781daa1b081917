package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"avaneesh/otrfrag-go/pkg/channel"
	"avaneesh/otrfrag-go/pkg/transport"
	"avaneesh/otrfrag-go/pkg/types"
)

func runAssemble(args []string, stdin io.Reader, stdout io.Writer) error {
	var tagFlag, inputPath string

	flagSet := pflag.NewFlagSet("assemble", pflag.ContinueOnError)
	flagSet.StringVar(&tagFlag, "tag", "0", "own instance tag in hex; fragments addressed to other nonzero tags are skipped")
	flagSet.StringVarP(&inputPath, "input", "i", "", "read wire messages from this file instead of stdin")

	ok, err := parseFlags(flagSet, args)
	if !ok || err != nil {
		return err
	}

	tag, err := types.ParseInstanceTag(tagFlag)
	if err != nil {
		return fmt.Errorf("invalid --tag %q: %w", tagFlag, err)
	}

	in := stdin
	if inputPath != "" {
		f, err := os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	return assemble(transport.NewAssembler(tag), in, stdout)
}

// assemble feeds every input line to a, printing each completed message on its own line
func assemble(a *transport.Assembler, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), channel.DefaultMaxMessageSize+2)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		result, err := a.Accumulate(scanner.Text())
		if err != nil {
			log.Warn().Int("line", lineNo).Str("kind", transport.ErrorKindOf(err).String()).Err(err).Msg("fragment rejected")
			continue
		}

		switch result.Status {
		case transport.StatusComplete:
			if _, err := fmt.Fprintln(out, result.Message); err != nil {
				return err
			}
		case transport.StatusForeignRecipient:
			log.Debug().Int("line", lineNo).Msg("fragment for another instance skipped")
		case transport.StatusIncomplete:
			current, total := a.Progress()
			log.Debug().Int("line", lineNo).Int("fragment", current).Int("total", total).Msg("fragment buffered")
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if a.InProgress() {
		current, total := a.Progress()
		log.Warn().Int("fragment", current).Int("total", total).Msg("input ended inside a fragmented message")
	}
	return nil
}
