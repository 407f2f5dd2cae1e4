package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"workpulse/sync-agent/internal/models"

	"go.uber.org/zap"
)

// APIClient handles communication with the backend REST API
type APIClient struct {
	baseURL       string
	accessToken   string
	httpClient    *http.Client
	logger        *zap.Logger
	onAuthFailure func()
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string, timeout time.Duration, logger *zap.Logger) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetAccessToken sets the bearer credential used on every request
func (c *APIClient) SetAccessToken(token string) {
	c.accessToken = token
}

// OnAuthFailure registers a callback invoked once per authorization failure
// on a non-auth endpoint (credential clear and forced re-authentication)
func (c *APIClient) OnAuthFailure(fn func()) {
	c.onAuthFailure = fn
}

// StartSession starts a new work session against a project. Fails with
// ConflictError when a non-stopped session already exists for the user.
func (c *APIClient) StartSession(ctx context.Context, projectID string) (*models.WorkSession, error) {
	var session models.WorkSession
	req := models.StartSessionRequest{ProjectID: projectID}
	if err := c.do(ctx, http.MethodPost, "/sessions/start", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// PauseSession pauses an active session
func (c *APIClient) PauseSession(ctx context.Context, sessionID string) (*models.WorkSession, error) {
	var session models.WorkSession
	path := fmt.Sprintf("/sessions/%s/pause", sessionID)
	if err := c.do(ctx, http.MethodPost, path, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ResumeSession resumes a paused session
func (c *APIClient) ResumeSession(ctx context.Context, sessionID string) (*models.WorkSession, error) {
	var session models.WorkSession
	path := fmt.Sprintf("/sessions/%s/resume", sessionID)
	if err := c.do(ctx, http.MethodPost, path, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// StopSession stops a session. The transition is irreversible; a new session
// must be started to resume tracking.
func (c *APIClient) StopSession(ctx context.Context, sessionID string) (*models.WorkSession, error) {
	var session models.WorkSession
	path := fmt.Sprintf("/sessions/%s/stop", sessionID)
	if err := c.do(ctx, http.MethodPost, path, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ActiveSession fetches the current user's active session. Returns nil when
// no session is running.
func (c *APIClient) ActiveSession(ctx context.Context) (*models.WorkSession, error) {
	var session *models.WorkSession
	if err := c.do(ctx, http.MethodGet, "/sessions/active/mine", nil, &session); err != nil {
		return nil, err
	}
	return session, nil
}

// ActiveSessions fetches all active sessions in the caller's scope
func (c *APIClient) ActiveSessions(ctx context.Context) ([]models.WorkSession, error) {
	var sessions []models.WorkSession
	if err := c.do(ctx, http.MethodGet, "/sessions/active", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SubmitActivityLog submits one activity-log entry for a session
func (c *APIClient) SubmitActivityLog(ctx context.Context, sessionID string, log models.ActivityLog) error {
	path := fmt.Sprintf("/sessions/%s/activity", sessionID)
	return c.do(ctx, http.MethodPost, path, log, nil)
}

// ListAlerts lists alerts in scope, optionally filtered by type, resolution
// status and severity
func (c *APIClient) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	values := url.Values{}
	if filter.Type != nil {
		values.Set("type", string(*filter.Type))
	}
	if filter.Resolved != nil {
		values.Set("resolved", strconv.FormatBool(*filter.Resolved))
	}
	if filter.Severity != nil {
		values.Set("severity", *filter.Severity)
	}

	path := "/alerts"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}

	var alerts []models.Alert
	if err := c.do(ctx, http.MethodGet, path, nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// ResolveAlert marks one alert resolved
func (c *APIClient) ResolveAlert(ctx context.Context, alertID string) error {
	path := fmt.Sprintf("/alerts/%s/resolve", alertID)
	return c.do(ctx, http.MethodPatch, path, nil, nil)
}

// ResolveAllAlerts marks every unresolved alert in scope resolved.
// Already-resolved alerts keep their original resolution timestamps.
func (c *APIClient) ResolveAllAlerts(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/alerts/resolve-all", nil, nil)
}

// OnlineUsers fetches the presence roster, used to resync the registry after
// a reconnect
func (c *APIClient) OnlineUsers(ctx context.Context) ([]models.PresenceEntry, error) {
	var entries []models.PresenceEntry
	if err := c.do(ctx, http.MethodGet, "/users/online", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DailySummary fetches the aggregated summary for a day. An empty date means
// today.
func (c *APIClient) DailySummary(ctx context.Context, date string) (*models.DailySummary, error) {
	path := "/reports/daily"
	if date != "" {
		path += "?date=" + url.QueryEscape(date)
	}
	var summary models.DailySummary
	if err := c.do(ctx, http.MethodGet, path, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// do performs one request and maps non-2xx responses onto the error taxonomy
func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error("Request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
			zap.Duration("duration", duration),
		)
		return &BackendError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("Request completed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
		)
		if out != nil && len(respBody) > 0 && string(respBody) != "null" {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
		}
		return nil
	}

	errMsg := fmt.Sprintf("backend returned status %d: %s", resp.StatusCode, string(respBody))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.Error("Authorization failed",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
		)
		// A failing login/registration attempt must not clear credentials
		// and loop back to re-authentication.
		if c.onAuthFailure != nil && !isAuthPath(path) {
			c.onAuthFailure()
		}
		return &AuthorizationError{Message: errMsg, StatusCode: resp.StatusCode}
	case http.StatusConflict:
		c.logger.Warn("Session conflict",
			zap.String("path", path),
			zap.String("response", string(respBody)),
		)
		return &ConflictError{Message: errMsg, StatusCode: resp.StatusCode}
	case http.StatusUnprocessableEntity:
		c.logger.Warn("Invalid state transition",
			zap.String("path", path),
			zap.String("response", string(respBody)),
		)
		return &InvalidStateError{Message: errMsg, StatusCode: resp.StatusCode}
	default:
		c.logger.Error("Backend error",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)),
		)
		return &BackendError{Message: errMsg, StatusCode: resp.StatusCode}
	}
}

func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/auth/")
}
