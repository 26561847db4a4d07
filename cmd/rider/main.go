package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/beekyynd/taxi/internal/bids"
	"github.com/beekyynd/taxi/internal/booking"
	"github.com/beekyynd/taxi/internal/docstore"
	"github.com/beekyynd/taxi/internal/drivers"
	"github.com/beekyynd/taxi/internal/geocode"
	"github.com/beekyynd/taxi/internal/lifecycle"
	"github.com/beekyynd/taxi/internal/mapbridge"
	"github.com/beekyynd/taxi/internal/session"
	"github.com/beekyynd/taxi/pkg/config"
	apperrors "github.com/beekyynd/taxi/pkg/errors"
	"github.com/beekyynd/taxi/pkg/logger"
	"github.com/beekyynd/taxi/pkg/notify"
	"github.com/beekyynd/taxi/pkg/storage"
)

func main() {
	cfg, err := config.Load("rider")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.App.Environment); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := apperrors.InitSentry(cfg.Sentry.DSN, cfg.App.Environment, ""); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer apperrors.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable local storage; fall back to in-memory when Redis is unreachable
	// so the shell still runs, just without persistence across restarts.
	var store storage.Store
	redisStore, err := storage.NewRedisStore(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory storage", zap.Error(err))
		store = storage.NewMemoryStore()
	} else {
		store = redisStore
		defer redisStore.Close()
	}

	docs, err := docstore.NewFirestoreStore(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsPath)
	if err != nil {
		logger.Error("failed to connect to the realtime store", zap.Error(err))
		os.Exit(1)
	}
	defer docs.Close()

	sessions := session.NewManager(store)
	api := booking.NewClient(cfg.API.BaseURL, cfg.API.Timeout, sessions)
	geocoder := geocode.NewGeocoder(cfg.API.GoogleMapKey)
	finder := drivers.NewFinder(docs)

	bridge := mapbridge.NewBridge(cfg.Bridge.ListenAddr, cfg.API.GoogleMapKey)
	if err := bridge.Start(); err != nil {
		logger.Error("failed to start map bridge", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bridge.Close(shutdownCtx)
	}()

	controller := lifecycle.NewController(lifecycle.Deps{
		Config:    cfg,
		API:       api,
		Docs:      docs,
		Bids:      bids.NewSubscription(docs, notify.LogHaptics{}),
		Sessions:  sessions,
		Notifier:  notify.LogNotifier{},
		Navigator: &logNavigator{},
		Surface:   bridge,
		Storage:   store,
		OnTick:    logCountdown,
		OnBids:    logBids,
	})
	defer controller.Close(context.Background())

	bridge.OnMessage(newSurfaceRouter(ctx, cfg, geocoder, finder, bridge).route)

	logger.Info("rider shell started",
		zap.String("environment", cfg.App.Environment),
		zap.String("bridge_addr", cfg.Bridge.ListenAddr),
	)

	<-ctx.Done()
	logger.Info("shutting down")
}
