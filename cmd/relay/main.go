package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	router "github.com/dkeye/VoiceCall/internal/adapters/http"
	"github.com/dkeye/VoiceCall/internal/app/relay"
	"github.com/dkeye/VoiceCall/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("relay", pflag.ExitOnError)
	flags.String("config", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	flags.String("mode", "release", "gin mode: release, debug or test")
	flags.String("log-level", "info", "log level")
	flags.Int("port", 8080, "listen port")
	flags.String("secret", "", "session cookie secret")
	flags.String("policy", "kick", "backpressure policy: kick or drop")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.ApplyLogLevel()

	policy, err := relay.PolicyByName(cfg.Relay.BackpressurePolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("bad backpressure policy")
	}
	hub := relay.NewHub(relay.Config{
		RateLimit:  cfg.Relay.RateLimit,
		RateWindow: cfg.Relay.RateWindow,
		Policy:     policy,
	})

	r := router.SetupRouter(ctx, cfg, hub)
	addr := fmt.Sprintf(":%d", cfg.Relay.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("VoiceCall relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Relay exited gracefully")
}
