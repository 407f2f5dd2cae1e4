package server

import (
	"encoding/json"
	"net/http"
	"time"

	"workpulse/sync-agent/internal/models"
	"workpulse/sync-agent/internal/monitor"

	"go.uber.org/zap"
)

// InputRequest is one qualifying input event reported by the embedding UI
type InputRequest struct {
	Kind        string `json:"kind"`
	Application string `json:"application,omitempty"`
	Title       string `json:"title,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// StatusProvider reports the engine's current state
type StatusProvider func() map[string]interface{}

// InputServer receives input-activity reports from the embedding UI over a
// localhost HTTP endpoint and feeds them into the activity monitor
type InputServer struct {
	monitor      *monitor.Monitor
	contextStore *monitor.ContextStore
	status       StatusProvider
	logger       *zap.Logger
}

// NewInputServer creates a new input server
func NewInputServer(mon *monitor.Monitor, store *monitor.ContextStore, status StatusProvider, logger *zap.Logger) *InputServer {
	return &InputServer{
		monitor:      mon,
		contextStore: store,
		status:       status,
		logger:       logger,
	}
}

// ServeHTTP implements http.Handler
func (s *InputServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The embedding UI runs in a browser window on a different origin
	s.setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.URL.Path {
	case "/api/v1/input":
		if r.Method == http.MethodPost {
			s.handleInput(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/status":
		if r.Method == http.MethodGet {
			s.handleStatus(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/health":
		if r.Method == http.MethodGet {
			s.handleHealth(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *InputServer) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// handleInput processes one input-activity report
func (s *InputServer) handleInput(w http.ResponseWriter, r *http.Request) {
	var req InputRequest

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		s.logger.Warn("Failed to decode input request", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	kind := models.InputKind(req.Kind)
	if !models.KnownInputKind(kind) {
		http.Error(w, "Unknown input kind", http.StatusBadRequest)
		return
	}

	s.monitor.RecordInput(kind)
	if req.Title != "" || req.Application != "" {
		s.contextStore.Set(req.Application, req.Title)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// handleStatus reports engine state for the embedding UI
func (s *InputServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.status())
}

// handleHealth provides a health check endpoint
func (s *InputServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
