// Command instrument-sim serves a mocked instrument server for local
// development of the dashboard.
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
	"cryo-dashboard/internal/simulator"
)

func main() {
	cfg := config.FromEnv()
	log := cfg.NewLogger(os.Stdout, "instrument-sim")

	sim := simulator.New(simulator.Options{
		Probes:   cfg.TemperatureProbes,
		Channels: cfg.PressureChannels,
		Logger:   log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.SimStreamInterval > 0 {
		go sim.Stream(ctx, cfg.SimStreamInterval)
	}

	mux := nethttp.NewServeMux()
	mux.Handle("/browser", sim)
	srv := &nethttp.Server{Addr: cfg.SimListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.SimListenAddr).Msg("instrument simulator listening on /browser")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatal().Err(err).Msg("simulator stopped")
	}
}
