package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"pdf-ai-assistant/internal/backend"
	"pdf-ai-assistant/internal/config"
	"pdf-ai-assistant/internal/events"
	"pdf-ai-assistant/internal/handler"
	"pdf-ai-assistant/internal/logging"
	chatservice "pdf-ai-assistant/internal/service/chat"
	"pdf-ai-assistant/internal/service/conversation"
	uploadservice "pdf-ai-assistant/internal/service/upload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Missing .env is fine, the system environment still applies.
	dotenvErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logging.New(cfg.Log, cfg.Dev)
	if dotenvErr != nil {
		log.Debug().Err(dotenvErr).Msg("no .env file loaded")
	}

	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.MatchCount, cfg.Backend.Timeout, log)
	bus := events.NewBus()

	registry := chatservice.NewRegistry(client, bus, log)
	uploads := uploadservice.NewController(client, registry, bus, cfg.Upload.MaxBytes, log)
	conv := conversation.NewController(client, registry, bus, log)

	router := handler.NewRouter(registry, conv, uploads, bus, cfg.Upload.MaxBytes, log)

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("backend", cfg.Backend.BaseURL).
		Int("match_count", cfg.Backend.MatchCount).
		Msg("starting pdf assistant")

	startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
