package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/aacharya/internal/alerts"
	"github.com/loqalabs/aacharya/internal/api"
	"github.com/loqalabs/aacharya/internal/bus"
	"github.com/loqalabs/aacharya/internal/config"
	"github.com/loqalabs/aacharya/internal/console"
	"github.com/loqalabs/aacharya/internal/eventstore"
	"github.com/loqalabs/aacharya/internal/gateway"
	"github.com/loqalabs/aacharya/internal/natsserver"
	"github.com/loqalabs/aacharya/internal/prefs"
	"github.com/loqalabs/aacharya/internal/runtime"
	"github.com/loqalabs/aacharya/internal/session"
	"github.com/loqalabs/aacharya/internal/stt"
	"github.com/loqalabs/aacharya/internal/tts"
)

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := commonFlags(fs)
	autoSpeak := fs.Bool("speak", false, "Read every reply aloud")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *autoSpeak {
		cfg.Session.AutoSpeak = true
	}
	logger, closeLog, err := newLogger(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := prefs.Open(ctx, cfg.Preferences, logger)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer store.Close()

	rt := runtime.New(cfg, logger)
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Shutdown(shutdownCtx); err != nil {
			logger.Error("runtime shutdown error", slog.String("error", err.Error()))
		}
	}()

	journal, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	busClient, closeBus, err := connectBus(ctx, cfg.Bus, logger)
	if err != nil {
		return err
	}
	defer closeBus()

	gw, err := gateway.New(cfg.Gateway, cfg.API)
	if err != nil {
		return err
	}

	var frames stt.FrameSubscriber
	if busClient != nil {
		frames = busClient
		rt.AddCheck("bus", busClient.Healthy)
	}
	capture, err := stt.NewCapture(cfg.STT, frames, logger)
	if err != nil {
		return err
	}
	player, err := tts.New(ctx, cfg.TTS, logger)
	if err != nil {
		return err
	}
	defer player.Close()

	sessionID := uuid.NewString()
	fetcher := alerts.NewFetcher(api.New(cfg.API), logger)
	fetcher.OnFailure(func(err error) {
		_ = journal.Record(context.Background(), sessionID, eventstore.KindAlertsFetchFailed, err.Error())
	})
	player.OnFailure(func(_ string, err error) {
		_ = journal.Record(context.Background(), sessionID, eventstore.KindPlaybackFailed, err.Error())
	})

	ctrl, err := session.New(ctx, session.Deps{
		SessionID: sessionID,
		Store:     store,
		Gateway:   gw,
		Alerts:    fetcher,
		Capture:   capture,
		Player:    player,
		Journal:   journal,
		Logger:    logger,
		Meter:     rt.Meter("aacharya/session"),
		Tracer:    rt.Tracer("aacharya/session"),
		AutoSpeak: cfg.Session.AutoSpeak,
		MaxAlerts: cfg.Session.MaxAlerts,
	})
	if errors.Is(err, session.ErrConfigurationMissing) {
		return exitError{code: 2, msg: "no language selected, run: aacharya language <code>\n\n" + languageList("")}
	}
	if err != nil {
		return err
	}
	defer ctrl.Close(context.Background())
	rt.ServeSession(func() any { return ctrl.Snapshot() })
	rt.StreamSession(ctrl.Subscribe)

	if busClient != nil {
		feed := alerts.NewFeed(busClient, logger)
		if err := feed.Start(ctrl); err != nil {
			logger.Warn("live alerts unavailable", slog.String("error", err.Error()))
		} else {
			defer feed.Close()
		}
	}

	// give the first alert fetch a moment so alerts show above the welcome
	select {
	case <-ctrl.AlertsLoaded():
	case <-time.After(2 * time.Second):
	}

	if err := console.New(os.Stdin, os.Stdout, ctrl).Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// connectBus returns a nil client when the bus is disabled.
func connectBus(ctx context.Context, cfg config.BusConfig, logger *slog.Logger) (*bus.Client, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	embedded, err := natsserver.Start(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if embedded != nil {
		cfg.Servers = []string{embedded.ClientURL()}
	}
	client, err := bus.Connect(ctx, cfg, logger)
	if err != nil {
		embedded.Shutdown()
		return nil, nil, err
	}
	return client, func() {
		client.Close()
		embedded.Shutdown()
	}, nil
}
