// Package main provides the entry point for the nines game service.
package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nines/internal/app"
	"nines/internal/config"
	"nines/internal/game"
	"nines/internal/server"
	"nines/internal/version"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML, TOML or JSON)")
	pretty := flag.Bool("pretty", false, "Human-readable console logs")
	flag.Parse()

	if *pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	log.Info().Str("version", version.String()).Msg("Starting nines")

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create app")
	}
	defer a.Close()

	// The service stays up without a model; evaluate answers 503 until it loads.
	if err := a.Warm(); err != nil {
		log.Err(err).Str("path", cfg.Model.Path).Msg("load model")
	}

	if cfg.LogLevel > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	session := game.NewSession(rand.New(rand.NewSource(time.Now().UnixNano())))
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           server.NewRouter(server.NewHandler(a.Pipeline, session)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reloadOnHangup(ctx, a)

	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("run server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Err(err).Msg("shutdown server")
	}
}

// reloadOnHangup drops the cached model on SIGHUP so a fixed or replaced
// artifact is picked up without a restart.
func reloadOnHangup(ctx context.Context, a *app.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Info().Msg("SIGHUP: reloading model")
			a.Reload()
			if err := a.Warm(); err != nil {
				log.Err(err).Msg("load model")
			}
		}
	}
}
