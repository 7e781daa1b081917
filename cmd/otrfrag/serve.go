package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"avaneesh/otrfrag-go/internal/config"
	"avaneesh/otrfrag-go/pkg/otr"
	"avaneesh/otrfrag-go/pkg/transport"
)

func runServe(args []string, stdout io.Writer) error {
	var configPath string

	flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "TOML configuration file")

	ok, err := parseFlags(flagSet, args)
	if !ok || err != nil {
		return err
	}

	cfg := config.Default()
	if configPath != "" {
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	} else {
		config.ApplyEnv(&cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	zl := initLogger(os.Stderr, cfg.LogFormat == "json")
	otr.UseZerolog(zl, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, stdout)
}

// serve runs one session on the configured channel until ctx is done
func serve(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	physical, err := cfg.PhysicalChannel()
	if err != nil {
		return err
	}

	manager := otr.NewManager()
	defer manager.Shutdown()

	ch, err := manager.AddChannel(cfg.Network, physical)
	if err != nil {
		physical.Close()
		return err
	}

	var outMu sync.Mutex
	handler := otr.HandlerFuncs{
		Message: func(peer, text string) {
			outMu.Lock()
			defer outMu.Unlock()
			fmt.Fprintf(stdout, "%s\t%s\n", peer, text)
		},
		Error: func(peer string, err error) {
			log.Warn().Str("peer", peer).Str("kind", transport.ErrorKindOf(err).String()).Err(err).Msg("message discarded")
		},
		Foreign: func(peer string) {
			log.Debug().Str("peer", peer).Msg("fragment for another instance")
		},
	}

	session, err := ch.AddSession(cfg.Session, handler)
	if err != nil {
		return err
	}
	defer session.Close()

	log.Info().
		Str("network", cfg.Network).
		Str("address", cfg.Address).
		Bool("listen", cfg.Listen).
		Str("instance_tag", session.InstanceTag().String()).
		Msg("serving")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}
