package alerts

import (
	"context"
	"strconv"
	"sync"
	"time"

	"workpulse/sync-agent/internal/cache"
	"workpulse/sync-agent/internal/models"

	"go.uber.org/zap"
)

// CachePrefix is the key prefix every alert read lives under
const CachePrefix = "alerts"

// API is the backend surface for alert reads and mutations
type API interface {
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
	ResolveAlert(ctx context.Context, alertID string) error
	ResolveAllAlerts(ctx context.Context) error
}

// Reconciler keeps the local alert view consistent with server-side
// detection. Alerts are re-fetched on a fixed polling interval and on demand
// after a push-notified alert event. Mutations are confirm-then-apply: a
// failed resolve leaves local state untouched and the list must be re-fetched
// to show true state.
type Reconciler struct {
	api      API
	cache    *cache.Cache
	interval time.Duration
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewReconciler creates an alert reconciler polling at the given interval
func NewReconciler(api API, c *cache.Cache, interval time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		api:      api,
		cache:    c,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.pollLoop()

	r.logger.Info("Alert reconciler started", zap.Duration("interval", r.interval))
}

// Stop stops the polling loop
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
	r.logger.Info("Alert reconciler stopped")
}

// List returns alerts in scope through the read cache
func (r *Reconciler) List(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	key := filterKey(filter)
	return cache.Fetch(ctx, r.cache, key, func(ctx context.Context) ([]models.Alert, error) {
		return r.api.ListAlerts(ctx, filter)
	})
}

// UnresolvedCount returns how many alerts in scope are unresolved
func (r *Reconciler) UnresolvedCount(ctx context.Context) (int, error) {
	resolved := false
	alerts, err := r.List(ctx, models.AlertFilter{Resolved: &resolved})
	if err != nil {
		return 0, err
	}
	return len(alerts), nil
}

// Resolve marks one alert resolved. On success the alert read cache is
// invalidated so the next read reflects the change.
func (r *Reconciler) Resolve(ctx context.Context, alertID string) error {
	if err := r.api.ResolveAlert(ctx, alertID); err != nil {
		return err
	}
	r.cache.Invalidate(CachePrefix)

	r.logger.Info("Alert resolved", zap.String("alert_id", alertID))
	return nil
}

// ResolveAll marks every currently-unresolved alert in scope resolved.
// Already-resolved alerts keep their original resolution timestamps.
func (r *Reconciler) ResolveAll(ctx context.Context) error {
	if err := r.api.ResolveAllAlerts(ctx); err != nil {
		return err
	}
	r.cache.Invalidate(CachePrefix)

	r.logger.Info("All alerts resolved")
	return nil
}

// NotifyPush handles a push-notified alert event by forcing the next read to
// re-fetch. Safe to invoke redundantly.
func (r *Reconciler) NotifyPush(event models.AlertEvent) {
	r.cache.Invalidate(CachePrefix)

	r.logger.Info("Alert raised",
		zap.String("alert_id", event.AlertID),
		zap.String("user_id", event.UserID),
		zap.String("type", string(event.Type)),
		zap.String("message", event.Message),
	)
}

// Refresh invalidates and re-fetches the unfiltered alert list
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.cache.Invalidate(CachePrefix)
	_, err := r.List(ctx, models.AlertFilter{})
	return err
}

func (r *Reconciler) pollLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("Alert poll failed", zap.Error(err))
			}
			cancel()
		case <-r.stopChan:
			return
		}
	}
}

func filterKey(filter models.AlertFilter) cache.Key {
	params := make([]string, 0, 3)
	if filter.Type != nil {
		params = append(params, "type="+string(*filter.Type))
	}
	if filter.Resolved != nil {
		params = append(params, "resolved="+strconv.FormatBool(*filter.Resolved))
	}
	if filter.Severity != nil {
		params = append(params, "severity="+*filter.Severity)
	}
	return cache.NewKey(CachePrefix, params...)
}
