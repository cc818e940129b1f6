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

	router "github.com/dkeye/huddle/internal/adapters/http"
	"github.com/dkeye/huddle/internal/adapters/rtc"
	signaling "github.com/dkeye/huddle/internal/adapters/signal"
	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/app/voice"
	"github.com/dkeye/huddle/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Err(err).Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	worker, err := rtc.NewWorker(rtc.Config{
		UDPPortMin:  cfg.RTC.UDPPortMin,
		UDPPortMax:  cfg.RTC.UDPPortMax,
		AnnouncedIP: cfg.RTC.AnnouncedIP,
		STUNURLs:    cfg.RTC.STUNURLs,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media worker")
	}

	o := orch.New(
		app.NewRegistry(),
		app.NewRoomManager(cfg.Chat.MaxMessages),
		voice.NewOrchestrator(worker, voice.DefaultCodecs),
		app.SimplePolicy{},
	)
	o.MaxRoomNameLen = cfg.Chat.MaxNameLen

	hub := signaling.NewHub(o.OnBackPressure)
	limiter := signaling.NewRoomRateLimiter(cfg.Limits.CreateRoomBurst, cfg.Limits.CreateRoomWindow)
	ctl := signaling.NewSignalWSController(o, hub, limiter, signaling.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})

	r := router.SetupRouter(ctx, cfg, o, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	select {
	case <-ctx.Done():
	case <-worker.Died():
		// voice cannot run without the worker
		log.Fatal().Err(worker.Err()).Msg("media worker died")
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
