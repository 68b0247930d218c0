package presence

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tableside/internal/httpserver"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// Registry is the presence store the handler serves.
type Registry interface {
	Heartbeat(ctx context.Context, ref models.ResourceRef, sessionID, ownerID string) error
	Leave(ctx context.Context, ref models.ResourceRef, sessionID string) error
	Present(ctx context.Context, ref models.ResourceRef) ([]models.Presence, error)
}

type Handler struct {
	registry Registry
	logger   *logger.Logger
}

func NewHandler(registry Registry, log *logger.Logger) *Handler {
	return &Handler{registry: registry, logger: log}
}

type presenceResponse struct {
	Count    int               `json:"count"`
	Sessions []models.Presence `json:"sessions"`
}

// Heartbeat handles PUT /presence/{resourceType}/{resourceID} and answers
// with everyone currently present.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ref := refFrom(r)
	err := h.registry.Heartbeat(ctx, ref,
		strings.TrimSpace(r.Header.Get(httpserver.HeaderSessionID)),
		strings.TrimSpace(r.Header.Get(httpserver.HeaderUserID)))
	if err != nil {
		httpserver.Fail(w, r, h.logger, "presence_heartbeat_failed", err)
		return
	}
	h.respond(ctx, w, r, ref)
}

// Leave handles DELETE /presence/{resourceType}/{resourceID}
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.registry.Leave(ctx, refFrom(r), strings.TrimSpace(r.Header.Get(httpserver.HeaderSessionID))); err != nil {
		httpserver.Fail(w, r, h.logger, "presence_leave_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /presence/{resourceType}/{resourceID}
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.respond(ctx, w, r, refFrom(r))
}

func (h *Handler) respond(ctx context.Context, w http.ResponseWriter, r *http.Request, ref models.ResourceRef) {
	present, err := h.registry.Present(ctx, ref)
	if err != nil {
		httpserver.Fail(w, r, h.logger, "presence_list_failed", err)
		return
	}
	httpserver.WriteJSON(w, r, h.logger, http.StatusOK, presenceResponse{Count: len(present), Sessions: present})
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("PUT /presence/{resourceType}/{resourceID}", httpserver.WithLogging(h.logger, h.Heartbeat))
	mux.HandleFunc("DELETE /presence/{resourceType}/{resourceID}", httpserver.WithLogging(h.logger, h.Leave))
	mux.HandleFunc("GET /presence/{resourceType}/{resourceID}", httpserver.WithLogging(h.logger, h.List))
}

func refFrom(r *http.Request) models.ResourceRef {
	return models.ResourceRef{Type: r.PathValue("resourceType"), ID: r.PathValue("resourceID")}
}
