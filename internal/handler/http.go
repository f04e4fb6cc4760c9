package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rampline/progression/internal/domain"
	"github.com/rampline/progression/internal/service"
	"github.com/rampline/progression/internal/websocket"
)

// Handler provides HTTP handlers for the progression API
type Handler struct {
	service *service.ProgressionService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.ProgressionService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Action intake
		r.Post("/actions", h.SubmitAction)

		// Skater operations
		r.Route("/skaters", func(r chi.Router) {
			r.Post("/", h.CreateSkater)

			r.Route("/{skaterID}", func(r chi.Router) {
				r.Get("/", h.GetSkater)
				r.Get("/progress", h.GetProgress)
				r.Get("/badges", h.GetSkaterBadges)
				r.Get("/rank", h.GetSkaterRank)
				r.Post("/badges/check", h.CheckBadges)
			})
		})

		// Badge catalog
		r.Route("/badges", func(r chi.Router) {
			r.Post("/", h.CreateBadge)
			r.Get("/", h.ListBadges)
		})

		// Leaderboard
		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/top", h.GetTop)
			r.Get("/range", h.GetRange)
			r.Get("/around/{skaterID}", h.GetAroundSkater)
			r.Get("/stats", h.GetBoardStats)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps domain errors to HTTP statuses, masking everything
// unexpected behind a generic internal error
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrSkaterExists) || errors.Is(err, domain.ErrBadgeExists):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrInvalidAction) || errors.Is(err, domain.ErrInvalidBadge):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// SubmitAction handles park action submission
func (h *Handler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var submission domain.ActionSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if submission.SkaterID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.service.ProcessAction(r.Context(), submission)
	if err != nil {
		h.writeServiceError(w, err, "failed to process action")
		return
	}

	h.writeSuccess(w, result)
}

// CreateSkater handles skater registration
func (h *Handler) CreateSkater(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSkaterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	skater, err := h.service.CreateSkater(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, "failed to create skater")
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    skater,
	})
}

// GetSkater returns a skater by ID
func (h *Handler) GetSkater(w http.ResponseWriter, r *http.Request) {
	skaterID := chi.URLParam(r, "skaterID")
	if skaterID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	skater, err := h.service.GetSkater(r.Context(), skaterID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get skater")
		return
	}

	h.writeSuccess(w, skater)
}

// GetProgress returns a skater with their position in the current level band
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	skaterID := chi.URLParam(r, "skaterID")
	if skaterID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	skater, progress, err := h.service.GetProgress(r.Context(), skaterID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get progress")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"skater":   skater,
		"progress": progress,
	})
}

// GetSkaterBadges returns a skater's earned badges
func (h *Handler) GetSkaterBadges(w http.ResponseWriter, r *http.Request) {
	skaterID := chi.URLParam(r, "skaterID")
	if skaterID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	badges, err := h.service.ListSkaterBadges(r.Context(), skaterID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list skater badges")
		return
	}

	h.writeSuccess(w, badges)
}

// CheckBadges runs a full badge re-evaluation for a skater (staff tool)
func (h *Handler) CheckBadges(w http.ResponseWriter, r *http.Request) {
	skaterID := chi.URLParam(r, "skaterID")
	if skaterID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	awarded, err := h.service.CheckAndAwardBadges(r.Context(), skaterID)
	if err != nil {
		h.writeServiceError(w, err, "failed to check badges")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"awarded": awarded,
		"count":   len(awarded),
	})
}

// CreateBadge handles badge catalog creation
func (h *Handler) CreateBadge(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBadgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	badge, err := h.service.CreateBadge(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, "failed to create badge")
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    badge,
	})
}

// ListBadges returns the badge catalog
func (h *Handler) ListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := h.service.ListBadges(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to list badges")
		return
	}

	h.writeSuccess(w, badges)
}

// GetSkaterRank returns a skater's leaderboard rank and XP
func (h *Handler) GetSkaterRank(w http.ResponseWriter, r *http.Request) {
	skaterID := chi.URLParam(r, "skaterID")
	if skaterID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	entry, err := h.service.GetSkaterRank(r.Context(), skaterID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get skater rank")
		return
	}

	h.writeSuccess(w, entry)
}

// GetTop returns the top N skaters by XP
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.service.GetTopN(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err, "failed to get top")
		return
	}

	h.writeSuccess(w, entries)
}

// GetRange returns skaters within a specific rank range
func (h *Handler) GetRange(w http.ResponseWriter, r *http.Request) {
	start := 0
	end := 10
	if startStr := r.URL.Query().Get("start"); startStr != "" {
		if s, err := strconv.Atoi(startStr); err == nil && s >= 0 {
			start = s
		}
	}
	if endStr := r.URL.Query().Get("end"); endStr != "" {
		if e, err := strconv.Atoi(endStr); err == nil && e >= start {
			end = e
		}
	}

	entries, err := h.service.GetRange(r.Context(), start, end)
	if err != nil {
		h.writeServiceError(w, err, "failed to get range")
		return
	}

	h.writeSuccess(w, entries)
}

// GetAroundSkater returns skaters ranked around a specific skater
func (h *Handler) GetAroundSkater(w http.ResponseWriter, r *http.Request) {
	skaterID := chi.URLParam(r, "skaterID")
	if skaterID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	count := 5
	if rangeStr := r.URL.Query().Get("range"); rangeStr != "" {
		if c, err := strconv.Atoi(rangeStr); err == nil && c > 0 {
			count = c
		}
	}

	entries, err := h.service.GetAroundSkater(r.Context(), skaterID, count)
	if err != nil {
		h.writeServiceError(w, err, "failed to get around skater")
		return
	}

	h.writeSuccess(w, entries)
}

// GetBoardStats returns statistics about the XP leaderboard
func (h *Handler) GetBoardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetBoardStats(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to get board stats")
		return
	}

	h.writeSuccess(w, stats)
}
