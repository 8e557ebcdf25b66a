package orchestrator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler exposes orchestrator HTTP endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
// Session metrics are recorded by the Service.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts the session and user endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/users/{user_id}", func(r chi.Router) {
		r.Post("/initialize", h.InitializeUser)
		r.Get("/connectivity", h.Connectivity)
		r.Get("/applications", h.Applications)
		r.Get("/server", h.ServerInfo)
	})
	r.Post("/sessions", h.StartSession)
	r.Get("/sessions", h.ListSessions)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Post("/stop", h.StopSession)
		r.Get("/stats", h.SessionStats)
	})
}

// InitializeUser handles POST /users/{user_id}/initialize.
func (h *Handler) InitializeUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !h.svc.InitializeForUser(r.Context(), userID) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": ErrNoServerAvailable.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Connectivity handles GET /users/{user_id}/connectivity.
func (h *Handler) Connectivity(w http.ResponseWriter, r *http.Request) {
	res := h.svc.TestConnectivity(r.Context(), chi.URLParam(r, "user_id"))
	status := http.StatusOK
	switch {
	case res.Success:
	case res.Code == "not_initialized":
		status = http.StatusConflict
	default:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}

// Applications handles GET /users/{user_id}/applications.
func (h *Handler) Applications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListApplications(r.Context(), chi.URLParam(r, "user_id")))
}

// ServerInfo handles GET /users/{user_id}/server.
func (h *Handler) ServerInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ServerInfo(r.Context(), chi.URLParam(r, "user_id")))
}

// StartSession handles POST /sessions.
// Body: {"user_id": "42", "source": {...}, "destinations": [{"platform_id": "youtube", "ingest_url": "rtmp://...", "stream_key": "..."}]}.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var spec StartSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		h.log.Debug("invalid start body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(spec.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, StartResponse{Error: "user_id required", Code: "invalid_request"})
		return
	}

	res := h.svc.StartSession(r.Context(), spec)
	if !res.Success {
		writeJSON(w, startStatus(res.Code), res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func startStatus(code string) int {
	switch code {
	case "server_at_capacity", "server_overloaded", "no_server_available":
		return http.StatusServiceUnavailable
	case "invalid_request":
		return http.StatusBadRequest
	case "session_already_active":
		return http.StatusConflict
	case "provisioning_failed", "transport_failure":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// StopSession handles POST /sessions/{session_id}/stop.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	res := h.svc.StopSession(r.Context(), id)
	if !res.Success {
		h.log.Error("stop session failed", slog.String("session_id", string(id)), slog.String("error", res.Error))
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SessionStats handles GET /sessions/{session_id}/stats.
func (h *Handler) SessionStats(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	writeJSON(w, http.StatusOK, h.svc.GetStats(r.Context(), id))
}

// ListSessions handles GET /sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.Sessions(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrRegistryUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []*Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
