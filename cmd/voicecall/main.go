package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/VoiceCall/internal/adapters/cli"
	"github.com/dkeye/VoiceCall/internal/app/orch"
	"github.com/dkeye/VoiceCall/internal/config"
	"github.com/dkeye/VoiceCall/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("voicecall", pflag.ExitOnError)
	flags.String("config", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	flags.String("log-level", "info", "log level")
	flags.String("relay", "", "relay websocket url")
	flags.String("id", "", "identity to log in with (generated when empty)")
	flags.String("input", "silence", "audio input: silence or microphone")
	flags.Duration("cooldown", 0, "pause after a call ends before the next one")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.ApplyLogLevel()

	var id domain.Identity
	if cfg.Client.Identity != "" {
		if id, err = domain.ParseIdentity(cfg.Client.Identity); err != nil {
			log.Fatal().Err(err).Msg("bad identity")
		}
	}

	screen := cli.NewRenderer(os.Stdout)
	o, err := orch.New(cfg, screen)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build endpoint")
	}
	session, err := o.Login(ctx, id)
	if err != nil {
		log.Fatal().Err(err).Msg("login failed")
	}
	screen.Printf("logged in as %s\n", o.Identity())

	if err := cli.NewConsole(session, os.Stdin, screen).Run(ctx); err != nil {
		log.Error().Err(err).Msg("console")
	}
	if err := o.Logout(); err != nil {
		log.Error().Err(err).Msg("logout")
	}
	log.Info().Msg("VoiceCall exited")
}
