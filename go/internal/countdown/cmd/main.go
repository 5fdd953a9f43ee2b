package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mcdev12/tickdown/go/clients"
	"github.com/mcdev12/tickdown/go/internal/announce"
	"github.com/mcdev12/tickdown/go/internal/countdown"
	"github.com/mcdev12/tickdown/go/internal/dbconfig"
	"github.com/mcdev12/tickdown/go/internal/snapshot"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// tickdown-watch runs one countdown session against a sync server and logs
// the remaining time. The snapshot backend and NATS announcer are optional.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	var (
		serverURL   = flag.String("server", "http://localhost:8080", "sync server base URL")
		key         = flag.String("key", "default", "countdown key")
		backend     = flag.String("store", "file", "snapshot backend: file, postgres or memory")
		snapshotDir = flag.String("snapshot-dir", ".tickdown", "directory for the file snapshot backend")
		syncTimeout = flag.Duration("sync-timeout", countdown.DefaultSyncTimeout, "per-request sync timeout")
		syncEvery   = flag.Duration("sync-interval", 5*time.Minute, "steady-state resync interval")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildStore(ctx, *backend, *snapshotDir)
	if err != nil {
		log.Fatal().Err(err).Str("backend", *backend).Msg("failed to set up snapshot store")
	}
	defer cleanup()

	transport := clients.NewSyncClient(*serverURL)
	transport.SetTimeout(*syncTimeout)

	session := countdown.NewSession(countdown.SessionConfig{
		Key:       *key,
		Transport: transport,
		Store:     store,
	})

	publisher := buildPublisher()
	defer publisher.Close()
	announce.Attach(session.Events(), publisher)

	cfg := countdown.DefaultDriverConfig()
	cfg.SyncInterval = *syncEvery
	cfg.OnTick = logTicker(session)

	driver := countdown.NewDriver(session, cfg)
	if err := driver.Run(ctx); err != nil {
		log.Error().Err(err).Msg("driver stopped with error")
	}
}

func buildStore(ctx context.Context, backend, dir string) (countdown.SnapshotStore, func(), error) {
	switch backend {
	case "file":
		store, err := snapshot.NewFileStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, dbconfig.NewConfigFromEnv().DSN())
		if err != nil {
			return nil, nil, err
		}
		store := snapshot.NewPGStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		return snapshot.NewMemStore(), func() {}, nil
	}
}

func buildPublisher() announce.Publisher {
	url := os.Getenv("NATS_URL")
	if url == "" {
		return announce.NopPublisher{}
	}
	cfg := announce.DefaultNATSConfig()
	cfg.URL = url
	publisher, err := announce.NewNATSPublisher(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable - lifecycle events will not be announced")
		return announce.NopPublisher{}
	}
	return publisher
}

// logTicker logs the countdown breakdown whenever the displayed second
// changes, rather than on every 100ms tick.
func logTicker(session *countdown.Session) func(countdown.DisplayState) {
	lastSecond := int64(-1)
	return func(st countdown.DisplayState) {
		second := st.RemainingMS / 1000
		if second == lastSecond {
			return
		}
		lastSecond = second

		b := session.Breakdown()
		evt := log.Info().
			Int("days", b.Days).
			Int("hours", b.Hours).
			Int("minutes", b.Minutes).
			Int("seconds", b.Seconds).
			Bool("expired", st.Expired)
		if !st.TimestampValid {
			evt = evt.Bool("timestamp_valid", false)
		}
		if st.ErrorMessage != "" {
			evt = evt.Str("error", st.ErrorMessage)
		}
		if st.Notice != "" {
			evt = evt.Str("notice", st.Notice)
		}
		evt.Msg("countdown")
	}
}
