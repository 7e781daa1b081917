package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"avaneesh/otrfrag-go/pkg/transport"
	"avaneesh/otrfrag-go/pkg/types"
)

func runSplit(args []string, stdin io.Reader, stdout io.Writer) error {
	var (
		pieceSize    int
		formatFlag   string
		senderFlag   string
		receiverFlag string
	)

	flagSet := pflag.NewFlagSet("split", pflag.ContinueOnError)
	flagSet.IntVarP(&pieceSize, "piece-size", "n", transport.DefaultMaxPieceSize, "maximum payload bytes per fragment")
	flagSet.StringVarP(&formatFlag, "format", "f", "addressed", "fragment format: addressed or legacy")
	flagSet.StringVar(&senderFlag, "sender", "0", "sender instance tag in hex (addressed format)")
	flagSet.StringVar(&receiverFlag, "receiver", "0", "receiver instance tag in hex (addressed format)")

	ok, err := parseFlags(flagSet, args)
	if !ok || err != nil {
		return err
	}

	format, err := transport.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	sender, err := types.ParseInstanceTag(senderFlag)
	if err != nil {
		return fmt.Errorf("invalid --sender %q: %w", senderFlag, err)
	}
	receiver, err := types.ParseInstanceTag(receiverFlag)
	if err != nil {
		return fmt.Errorf("invalid --receiver %q: %w", receiverFlag, err)
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	msg := strings.TrimRight(string(data), "\r\n")

	fragments, err := transport.SplitMessage(msg, transport.SplitOptions{
		MaxPieceSize: pieceSize,
		Format:       format,
		Sender:       sender,
		Receiver:     receiver,
	})
	if err != nil {
		return err
	}

	for _, fragment := range fragments {
		if _, err := fmt.Fprintln(stdout, fragment); err != nil {
			return err
		}
	}
	return nil
}
