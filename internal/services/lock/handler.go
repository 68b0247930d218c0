package lock

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tableside/internal/httpserver"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// Handler exposes resource locks over HTTP. The owner is the caller's
// X-User-ID and the holder session its X-Session-ID.
type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

type acquireResponse struct {
	Result models.LockResult   `json:"result"`
	Lock   models.ResourceLock `json:"lock"`
}

// Acquire handles POST /locks/{resourceType}/{resourceID}. A lock held
// by another session answers 423 with the current holder.
func (h *Handler) Acquire(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	result, held, err := h.service.Acquire(ctx, refFrom(r),
		strings.TrimSpace(r.Header.Get(httpserver.HeaderUserID)),
		strings.TrimSpace(r.Header.Get(httpserver.HeaderSessionID)))
	if err != nil {
		httpserver.Fail(w, r, h.logger, "lock_acquire_failed", err)
		return
	}

	status := http.StatusOK
	if result == models.LockHeldByOther {
		status = http.StatusLocked
	}
	httpserver.WriteJSON(w, r, h.logger, status, acquireResponse{Result: result, Lock: held})
}

// Release handles DELETE /locks/{resourceType}/{resourceID}
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.service.Release(ctx, refFrom(r), strings.TrimSpace(r.Header.Get(httpserver.HeaderSessionID))); err != nil {
		httpserver.Fail(w, r, h.logger, "lock_release_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /locks/{resourceType}/{resourceID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	held, err := h.service.GetLock(ctx, refFrom(r))
	if err != nil {
		httpserver.Fail(w, r, h.logger, "lock_read_failed", err)
		return
	}
	if held == nil {
		httpserver.WriteErrorResponse(w, http.StatusNotFound, "Resource is not locked", logger.RequestID(r.Context()))
		return
	}
	httpserver.WriteJSON(w, r, h.logger, http.StatusOK, held)
}

// Register adds the lock routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /locks/{resourceType}/{resourceID}", httpserver.WithLogging(h.logger, h.Acquire))
	mux.HandleFunc("DELETE /locks/{resourceType}/{resourceID}", httpserver.WithLogging(h.logger, h.Release))
	mux.HandleFunc("GET /locks/{resourceType}/{resourceID}", httpserver.WithLogging(h.logger, h.Get))
}

func refFrom(r *http.Request) models.ResourceRef {
	return models.ResourceRef{Type: r.PathValue("resourceType"), ID: r.PathValue("resourceID")}
}
