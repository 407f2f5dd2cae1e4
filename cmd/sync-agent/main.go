package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workpulse/sync-agent/internal/alerts"
	"workpulse/sync-agent/internal/cache"
	"workpulse/sync-agent/internal/client"
	"workpulse/sync-agent/internal/config"
	"workpulse/sync-agent/internal/credentials"
	"workpulse/sync-agent/internal/database"
	"workpulse/sync-agent/internal/logger"
	"workpulse/sync-agent/internal/monitor"
	"workpulse/sync-agent/internal/presence"
	"workpulse/sync-agent/internal/server"
	"workpulse/sync-agent/internal/service"
	"workpulse/sync-agent/internal/session"
	"workpulse/sync-agent/internal/spool"
	"workpulse/sync-agent/internal/transport"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	instanceID := uuid.NewString()
	log.Info("Starting sync agent",
		zap.String("env", cfg.Env),
		zap.String("instance_id", instanceID),
		zap.String("config_path", *configPath),
	)

	db, err := database.New(cfg.StoragePath, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	// The persisted credential decides whether the push channel can be
	// established at all. Token issuance happens outside this agent.
	credStore := credentials.NewStore(db.DB, log.Logger)
	creds, err := credStore.Load()
	if err != nil {
		log.Fatal("Failed to load credentials", zap.Error(err))
	}
	if creds == nil {
		log.Fatal("No credentials found; sign in through the WorkPulse UI first")
	}

	apiClient := client.NewAPIClient(
		cfg.Backend.BaseURL,
		time.Duration(cfg.Backend.Timeout)*time.Second,
		log.Logger,
	)
	apiClient.SetAccessToken(creds.AccessToken)

	channel := transport.NewChannel(transport.Options{
		URL:         cfg.Backend.SocketURL,
		ClientID:    instanceID,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Reconnect.BaseDelay) * time.Second,
		MaxDelay:    time.Duration(cfg.Reconnect.MaxDelay) * time.Second,
	}, log.Logger)

	channel.OnConnectionFailed(func(err error) {
		log.Error("Push channel connection failed permanently; restart the agent to reconnect",
			zap.Error(err),
		)
	})

	// An authorization failure on any non-auth call clears the persisted
	// credential and tears down the channel; the user must sign in again.
	apiClient.OnAuthFailure(func() {
		log.Warn("Authorization failed, clearing credentials")
		if err := credStore.Clear(); err != nil {
			log.Error("Failed to clear credentials", zap.Error(err))
		}
		channel.Disconnect()
	})

	readCache := cache.New(time.Duration(cfg.Cache.TTL)*time.Second, log.Logger)
	registry := presence.NewRegistry(log.Logger)
	controller := session.NewController(apiClient, readCache, creds.Profile.UserID, log.Logger)

	contextStore := monitor.NewContextStore(time.Duration(cfg.Tracking.ContextTTL) * time.Second)
	logSpool := spool.NewSpool(db.DB, log.Logger)
	activityMonitor := monitor.NewMonitor(
		controller,
		apiClient,
		logSpool,
		contextStore,
		time.Duration(cfg.Tracking.IdleThreshold)*time.Second,
		time.Duration(cfg.Tracking.CheckInterval)*time.Second,
		cfg.Tracking.AppName,
		log.Logger,
	)

	reconciler := alerts.NewReconciler(
		apiClient,
		readCache,
		time.Duration(cfg.Alerts.PollInterval)*time.Second,
		log.Logger,
	)

	syncService := service.NewSyncService(
		channel,
		apiClient,
		readCache,
		registry,
		controller,
		reconciler,
		activityMonitor,
		logSpool,
		log.Logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := syncService.Start(ctx, creds.AccessToken); err != nil {
		cancel()
		log.Fatal("Failed to start sync service", zap.Error(err))
	}
	cancel()

	// Local HTTP server through which the embedding UI reports input
	// activity and reads engine status.
	var inputHTTPServer *http.Server
	if cfg.Server.Enabled {
		inputServer := server.NewInputServer(activityMonitor, contextStore, syncService.Status, log.Logger)
		addr := fmt.Sprintf("localhost:%d", cfg.Server.Port)
		inputHTTPServer = &http.Server{
			Addr:         addr,
			Handler:      inputServer,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info("Starting input server", zap.String("address", addr))
			if err := inputHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Input server error", zap.Error(err))
			}
		}()
	} else {
		log.Info("Input server disabled in configuration")
	}

	log.Info("Sync agent started",
		zap.String("user_id", creds.Profile.UserID),
		zap.String("backend_url", cfg.Backend.BaseURL),
		zap.String("socket_url", cfg.Backend.SocketURL),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	if inputHTTPServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := inputHTTPServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("Input server shutdown error", zap.Error(err))
		}
		shutdownCancel()
	}

	done := make(chan struct{})
	go func() {
		syncService.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("Sync service stopped successfully")
	case <-time.After(5 * time.Second):
		log.Warn("Shutdown timeout reached, forcing exit")
		os.Exit(1)
	}

	if err := logSpool.CleanupOld(7 * 24 * time.Hour); err != nil {
		log.Error("Failed to cleanup old spooled logs", zap.Error(err))
	}

	log.Info("Sync agent stopped")
}
