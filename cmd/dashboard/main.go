package main

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryo-dashboard/internal/config"
	httpapi "cryo-dashboard/internal/http"
)

var version = "dev"

func main() {
	cfg := config.FromEnv()
	log := cfg.NewLogger(os.Stdout, "cryo-dashboard")

	srv, err := httpapi.NewServer(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("version", version).
			Str("addr", cfg.ListenAddr).
			Str("upstream", cfg.UpstreamURL).
			Bool("archive", cfg.ArchiveEnabled).
			Msg("starting dashboard server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
		return
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
