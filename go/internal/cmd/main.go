package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tickdown/go/internal/gateway"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	configPath := flag.String("config", "config.yaml", "path to server config")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	deadlines := make(gateway.StaticDeadlines, len(cfg.Countdowns))
	keys := make([]string, 0, len(cfg.Countdowns))
	for _, c := range cfg.Countdowns {
		deadlines[c.Key] = c.Deadline
		keys = append(keys, c.Key)
		log.Info().Str("key", c.Key).Time("deadline", c.Deadline).Msg("serving countdown")
	}

	gwConfig := gateway.DefaultConfig()
	gwConfig.Keys = keys
	if cfg.Broadcast.Interval > 0 {
		gwConfig.BroadcastInterval = time.Duration(cfg.Broadcast.Interval)
	}

	svc := gateway.NewService(clockwork.NewRealClock(), deadlines, gwConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := svc.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	server := setupServer(svc, port)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("tickdownd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
