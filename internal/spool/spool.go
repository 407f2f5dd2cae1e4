package spool

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"workpulse/sync-agent/internal/models"

	"go.uber.org/zap"
)

// retryCeiling is the number of resubmission attempts an entry gets before
// it stops being dequeued and becomes eligible for cleanup
const retryCeiling = 10

// Entry is one spooled activity log awaiting retry
type Entry struct {
	ID        int64
	SessionID string
	Log       models.ActivityLog
}

// Spool persists activity logs whose best-effort submission failed, so
// telemetry survives backend outages. Retried on a timer by the sync
// service; entries past the retry ceiling are dropped by CleanupOld.
type Spool struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSpool creates an activity-log spool
func NewSpool(db *sql.DB, logger *zap.Logger) *Spool {
	return &Spool{
		db:     db,
		logger: logger,
	}
}

// Enqueue spools one failed activity log
func (s *Spool) Enqueue(sessionID string, log models.ActivityLog) error {
	logData, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal activity log: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO pending_activity_logs (session_id, log_data, created_at, retry_count)
		VALUES (?, ?, ?, 0)
	`, sessionID, string(logData), time.Now())
	if err != nil {
		return fmt.Errorf("failed to enqueue activity log: %w", err)
	}

	s.logger.Debug("Activity log spooled", zap.String("session_id", sessionID))
	return nil
}

// Dequeue retrieves up to limit spooled logs, oldest first. Entries past the
// retry ceiling are left for CleanupOld instead of being retried forever.
func (s *Spool) Dequeue(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, log_data
		FROM pending_activity_logs
		WHERE retry_count <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`, retryCeiling, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var logData string

		if err := rows.Scan(&e.ID, &e.SessionID, &logData); err != nil {
			s.logger.Error("Failed to scan row", zap.Error(err))
			continue
		}

		if err := json.Unmarshal([]byte(logData), &e.Log); err != nil {
			s.logger.Error("Failed to unmarshal spooled log", zap.Error(err), zap.Int64("id", e.ID))
			// Remove corrupted entry
			s.db.Exec("DELETE FROM pending_activity_logs WHERE id = ?", e.ID)
			continue
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Remove deletes entries by id after successful submission
func (s *Spool) Remove(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := "DELETE FROM pending_activity_logs WHERE id IN ("
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ")"

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to remove spooled logs: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	s.logger.Debug("Spooled logs removed", zap.Int64("count", rowsAffected))
	return nil
}

// IncrementRetry bumps the retry count for entries that failed again
func (s *Spool) IncrementRetry(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := "UPDATE pending_activity_logs SET retry_count = retry_count + 1, last_attempt = ? WHERE id IN ("
	args := make([]interface{}, len(ids)+1)
	args[0] = time.Now()
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i+1] = id
	}
	query += ")"

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to increment retry: %w", err)
	}
	return nil
}

// PendingCount returns the number of spooled logs
func (s *Spool) PendingCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_activity_logs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return count, nil
}

// CleanupOld removes entries older than the given duration that have
// exhausted their retries
func (s *Spool) CleanupOld(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.Exec(`
		DELETE FROM pending_activity_logs
		WHERE created_at < ? AND retry_count > ?
	`, cutoff, retryCeiling)
	if err != nil {
		return fmt.Errorf("failed to cleanup old logs: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Info("Cleaned up old spooled logs", zap.Int64("count", rowsAffected))
	}
	return nil
}
