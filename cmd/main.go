package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/Vasu1712/scenyx-live/internal/api/concerts"
	"github.com/Vasu1712/scenyx-live/internal/auth"
	"github.com/Vasu1712/scenyx-live/internal/config"
	"github.com/Vasu1712/scenyx-live/internal/events"
	"github.com/Vasu1712/scenyx-live/internal/middleware"
	"github.com/Vasu1712/scenyx-live/internal/storage"
	"github.com/Vasu1712/scenyx-live/internal/storage/memory"
	"github.com/Vasu1712/scenyx-live/internal/storage/postgres"
	"github.com/Vasu1712/scenyx-live/internal/storage/valkey"
	"github.com/Vasu1712/scenyx-live/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config: load failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg))

	if err := run(cfg); err != nil {
		slog.Error("server: exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.Config) error {
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.close()

	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("events: close failed", "error", err)
		}
	}()

	registry := ws.NewRegistry(ws.RegistryConfig{
		HistoryLimit: cfg.ChatHistoryLimit,
		IdleTTL:      cfg.RoomIdleTTL,
	})
	registry.StartReaper()
	defer registry.Stop()

	metrics := ws.NewMetrics()
	service := ws.NewService(ws.ServiceConfig{
		MaxChatLength:        cfg.ChatMaxLength,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
	}, ws.ServiceDeps{
		Registry:    registry,
		Broadcaster: ws.NewBroadcaster(registry, metrics, ws.WithPublisher(publisher)),
		Metrics:     metrics,
		Concerts:    stores.concerts,
		Archive:     stores.archive,
	})

	router := mux.NewRouter()
	handler := concerts.NewConcertHandler(stores.concerts, service, auth.NewVerifier(cfg.JWTSecret), cfg.AllowedOrigin)
	concerts.RegisterConcertRoutes(router, handler)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           middleware.Logging(middleware.CORS(cfg.AllowedOrigin)(router)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", cfg.HTTPAddr, "store", cfg.Store, "archive", cfg.Archive)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked websocket connections are not tracked by http.Server.
	service.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type backends struct {
	concerts storage.ConcertStore
	archive  storage.HistoryArchive
	closers  []func() error
}

func (b *backends) close() {
	for _, c := range b.closers {
		if err := c(); err != nil {
			slog.Warn("storage: close failed", "error", err)
		}
	}
}

func openStores(cfg *config.Config) (*backends, error) {
	b := &backends{}

	var pg *postgres.Store
	openPostgres := func() (*postgres.Store, error) {
		if pg != nil {
			return pg, nil
		}
		s, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pg = s
		b.closers = append(b.closers, s.Close)
		return s, nil
	}

	switch cfg.Store {
	case config.StorePostgres:
		s, err := openPostgres()
		if err != nil {
			return nil, err
		}
		b.concerts = s
	default:
		b.concerts = memory.NewConcertStore()
	}

	switch cfg.Archive {
	case config.ArchiveNone:
	case config.ArchivePostgres:
		s, err := openPostgres()
		if err != nil {
			b.close()
			return nil, err
		}
		b.archive = s
	case config.ArchiveValkey:
		a, err := valkey.NewHistoryArchive(cfg.ValkeyAddr, cfg.ChatHistoryLimit)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("open valkey: %w", err)
		}
		b.archive = a
		b.closers = append(b.closers, a.Close)
	default:
		b.archive = memory.NewHistoryArchive(cfg.ChatHistoryLimit)
	}
	return b, nil
}

func openPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		return &events.NoopPublisher{}, nil
	}
	p, err := events.NewNATSPublisher(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	slog.Info("events: publishing to nats", "url", cfg.NATSURL)
	return p, nil
}
