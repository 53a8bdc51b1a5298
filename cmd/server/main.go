package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/qapac-nav/qapac-nav/internal/app"
	"github.com/qapac-nav/qapac-nav/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var flags flagOptions
	flags.AddFlags(pflag.CommandLine)
	pflag.Parse()

	if flags.changed("port") {
		cfg.Port = flags.port
	}
	if flags.changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer application.Shutdown()

	log := application.Log()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     application.Router,
		ReadTimeout: 10 * time.Second,
		// WriteTimeout is intentionally left at zero: the /api/v1/routes/stream
		// WebSocket holds its connection open far longer than any ordinary
		// request, and http.Server applies WriteTimeout to the whole
		// connection lifetime, not per-write.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shut down")
	}

	log.Info().Msg("server stopped")
}
