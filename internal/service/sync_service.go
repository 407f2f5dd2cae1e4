package service

import (
	"context"
	"sync"
	"time"

	"workpulse/sync-agent/internal/alerts"
	"workpulse/sync-agent/internal/cache"
	"workpulse/sync-agent/internal/client"
	"workpulse/sync-agent/internal/models"
	"workpulse/sync-agent/internal/monitor"
	"workpulse/sync-agent/internal/presence"
	"workpulse/sync-agent/internal/session"
	"workpulse/sync-agent/internal/spool"
	"workpulse/sync-agent/internal/transport"

	"go.uber.org/zap"
)

// SyncService wires the push channel into the presence registry, session
// controller, alert reconciler and read cache, and owns the post-reconnect
// resynchronization sequence
type SyncService struct {
	channel  *transport.Channel
	api      *client.APIClient
	cache    *cache.Cache
	presence *presence.Registry
	sessions *session.Controller
	alerts   *alerts.Reconciler
	monitor  *monitor.Monitor
	spool    *spool.Spool
	logger   *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSyncService creates the synchronization orchestrator
func NewSyncService(
	channel *transport.Channel,
	api *client.APIClient,
	c *cache.Cache,
	registry *presence.Registry,
	sessions *session.Controller,
	reconciler *alerts.Reconciler,
	mon *monitor.Monitor,
	logSpool *spool.Spool,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		channel:  channel,
		api:      api,
		cache:    c,
		presence: registry,
		sessions: sessions,
		alerts:   reconciler,
		monitor:  mon,
		spool:    logSpool,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start registers push handlers and begins the component loops
func (s *SyncService) Start(ctx context.Context, token string) error {
	s.registerHandlers()

	if err := s.channel.Connect(ctx, token); err != nil {
		return err
	}

	s.alerts.Start()
	s.monitor.Start()

	if s.spool != nil {
		s.wg.Add(1)
		go s.spoolProcessor()
	}

	// Session state may have changed while the agent was down.
	if err := s.sessions.Refresh(ctx); err != nil {
		s.logger.Warn("Initial session refresh failed", zap.Error(err))
	}

	s.logger.Info("Sync service started")
	return nil
}

// Stop tears everything down in reverse dependency order. Disconnecting the
// channel releases every handler registered through it.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()

	s.monitor.Stop()
	s.alerts.Stop()
	s.channel.Disconnect()

	s.logger.Info("Sync service stopped")
}

// Status reports the engine's current state for the local status endpoint
func (s *SyncService) Status() map[string]interface{} {
	status := map[string]interface{}{
		"connected":      s.channel.IsConnected(),
		"online_count":   s.presence.Count(),
		"classification": string(s.sessions.Classification()),
		"log_failures":   s.monitor.FailureCount(),
	}

	if cur := s.sessions.Current(); cur != nil {
		status["session_id"] = cur.ID
		status["session_status"] = string(cur.Status)
	} else {
		status["session_status"] = "none"
	}

	if s.spool != nil {
		if pending, err := s.spool.PendingCount(); err == nil {
			status["spooled_logs"] = pending
		}
	}

	return status
}

// registerHandlers subscribes to the closed set of push events. Every
// handler is an idempotent merge: a refresh-triggered re-fetch and a push
// event can race, and redundant deliveries must converge.
func (s *SyncService) registerHandlers() {
	s.channel.On(models.EventUserOnline, func(event models.Event) {
		e := event.(models.UserOnlineEvent)
		s.presence.Upsert(models.PresenceEntry{
			UserID:   e.UserID,
			Name:     e.DisplayName(),
			Role:     e.Role,
			Status:   models.PresenceActive,
			LastSeen: time.Now(),
		})
		s.cache.Invalidate("users")
	})

	s.channel.On(models.EventUserOffline, func(event models.Event) {
		e := event.(models.UserOfflineEvent)
		s.presence.Remove(e.UserID)
		s.cache.Invalidate("users")
	})

	s.channel.On(models.EventSessionUpdate, func(event models.Event) {
		e := event.(models.SessionUpdateEvent)
		s.sessions.ApplyRemote(e.Session)
		s.cache.Invalidate("sessions", "activeSession", "dailySummary")
	})

	alertHandler := func(event models.Event) {
		s.alerts.NotifyPush(event.(models.AlertEvent))
	}
	s.channel.On(models.EventIdleAlert, alertHandler)
	s.channel.On(models.EventOvertimeAlert, alertHandler)

	s.channel.On(models.EventReconnect, func(event models.Event) {
		e := event.(models.ReconnectEvent)
		s.logger.Info("Resyncing after reconnect", zap.Int("attempt", e.Attempt))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.resync(ctx)
	})
}

// resync re-fetches authoritative state after a reconnect. Order matters:
// the most operationally live data (what am I doing right now) is corrected
// before less time-sensitive aggregates.
func (s *SyncService) resync(ctx context.Context) {
	// 1. Current session.
	if err := s.sessions.Refresh(ctx); err != nil {
		s.logger.Warn("Session refresh failed during resync", zap.Error(err))
	}

	// 2. Session lists.
	s.cache.Invalidate("sessions", "activeSession")

	// 3. Presence roster.
	roster, err := s.api.OnlineUsers(ctx)
	if err != nil {
		s.logger.Warn("Roster fetch failed during resync", zap.Error(err))
	} else {
		s.presence.ReplaceAll(roster)
	}
	s.cache.Invalidate("users")

	// 4. Alerts.
	if err := s.alerts.Refresh(ctx); err != nil {
		s.logger.Warn("Alert refresh failed during resync", zap.Error(err))
	}

	// 5. Daily/summary aggregates.
	s.cache.Invalidate("dailySummary", "sessionHistory", "reports")
}

// spoolProcessor retries spooled activity logs in the background
func (s *SyncService) spoolProcessor() {
	defer s.wg.Done()

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processSpool()
		case <-s.stopChan:
			return
		}
	}
}

// processSpool attempts to submit spooled logs, one request per entry
func (s *SyncService) processSpool() {
	pending, err := s.spool.PendingCount()
	if err != nil {
		s.logger.Error("Failed to get spool count", zap.Error(err))
		return
	}
	if pending == 0 {
		return
	}

	entries, err := s.spool.Dequeue(100)
	if err != nil {
		s.logger.Error("Failed to dequeue spooled logs", zap.Error(err))
		return
	}

	var sent, failed []int64
	for _, e := range entries {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.api.SubmitActivityLog(ctx, e.SessionID, e.Log)
		cancel()
		if err != nil {
			failed = append(failed, e.ID)
			continue
		}
		sent = append(sent, e.ID)
	}

	if len(sent) > 0 {
		if err := s.spool.Remove(sent); err != nil {
			s.logger.Error("Failed to remove sent logs from spool", zap.Error(err))
		} else {
			s.logger.Info("Submitted spooled activity logs", zap.Int("count", len(sent)))
		}
	}
	if len(failed) > 0 {
		if err := s.spool.IncrementRetry(failed); err != nil {
			s.logger.Error("Failed to increment spool retry count", zap.Error(err))
		}
	}
}
