package order

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"tableside/internal/httpserver"
	"tableside/internal/logger"
	"tableside/internal/models"
)

const requestTimeout = 30 * time.Second

// Handler handles HTTP requests for the order service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

type resolveRequest struct {
	RestaurantID string `json:"restaurant_id"`
	TableID      string `json:"table_id"`
	MenuID       string `json:"menu_id"`
}

type resolveResponse struct {
	Order       models.Order       `json:"order"`
	Participant models.Participant `json:"participant"`
}

type addItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
}

type advanceRequest struct {
	Status models.LineStatus `json:"status"`
}

type payRequest struct {
	Tip *decimal.Decimal `json:"tip,omitempty"`
}

type localeRequest struct {
	Locale string `json:"locale"`
}

// ResolveTable handles POST /tables/resolve: finds or opens the table's
// order and joins the caller to it.
func (h *Handler) ResolveTable(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	order, err := h.service.ResolveOrCreateOrder(ctx, models.TableKey{
		RestaurantID: req.RestaurantID,
		TableID:      req.TableID,
		MenuID:       req.MenuID,
	})
	if err != nil {
		h.fail(w, r, "order_resolve_failed", err)
		return
	}

	participant, err := h.join(ctx, r, order.ID)
	if err != nil {
		h.fail(w, r, "participant_join_failed", err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, resolveResponse{Order: order, Participant: participant})
}

// GetOrder handles GET /orders/{orderID}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := h.service.GetOrder(ctx, r.PathValue("orderID"))
	if err != nil {
		h.fail(w, r, "order_read_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, summary)
}

// ListActions handles GET /orders/{orderID}/actions
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	actions, err := h.service.ListActions(ctx, r.PathValue("orderID"))
	if err != nil {
		h.fail(w, r, "actions_read_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, actions)
}

// ListParticipants handles GET /orders/{orderID}/participants
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	participants, err := h.service.ListParticipants(ctx, r.PathValue("orderID"))
	if err != nil {
		h.fail(w, r, "participants_read_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, participants)
}

// AddItem handles POST /orders/{orderID}/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	orderID := r.PathValue("orderID")
	participant, err := h.join(ctx, r, orderID)
	if err != nil {
		h.fail(w, r, "participant_join_failed", err)
		return
	}

	line, err := h.service.AddItem(ctx, AddItemInput{OrderID: orderID, ParticipantID: participant.ID, MenuItemID: req.MenuItemID})
	if err != nil {
		h.fail(w, r, "item_add_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, line)
}

// RemoveItem handles DELETE /orders/{orderID}/items/{lineID}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	orderID := r.PathValue("orderID")
	participant, err := h.join(ctx, r, orderID)
	if err != nil {
		h.fail(w, r, "participant_join_failed", err)
		return
	}

	line, err := h.service.RemoveItem(ctx, LineInput{OrderID: orderID, ParticipantID: participant.ID, LineID: r.PathValue("lineID")})
	if err != nil {
		h.fail(w, r, "item_remove_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, line)
}

// AdvanceItem handles POST /orders/{orderID}/items/{lineID}/advance
func (h *Handler) AdvanceItem(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	orderID := r.PathValue("orderID")
	participant, err := h.join(ctx, r, orderID)
	if err != nil {
		h.fail(w, r, "participant_join_failed", err)
		return
	}

	line, err := h.service.AdvanceLine(ctx, AdvanceLineInput{
		LineInput: LineInput{OrderID: orderID, ParticipantID: participant.ID, LineID: r.PathValue("lineID")},
		Target:    req.Status,
	})
	if err != nil {
		h.fail(w, r, "item_advance_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, line)
}

// Transition returns a handler for an order-level transition endpoint.
func (h *Handler) Transition(trigger models.OrderTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req payRequest
		if !httpserver.DecodeOptionalJSON(w, r, h.logger, &req) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		orderID := r.PathValue("orderID")
		participant, err := h.join(ctx, r, orderID)
		if err != nil {
			h.fail(w, r, "participant_join_failed", err)
			return
		}

		in := TransitionInput{OrderID: orderID, ParticipantID: participant.ID, Tip: req.Tip}
		var order models.Order
		switch trigger {
		case models.TriggerPlaceOrder:
			order, err = h.service.PlaceOrder(ctx, in)
		case models.TriggerDeliver:
			order, err = h.service.Deliver(ctx, in)
		case models.TriggerRequestBill:
			order, err = h.service.RequestBill(ctx, in)
		case models.TriggerPay:
			order, err = h.service.Pay(ctx, in)
		case models.TriggerClose:
			order, err = h.service.Close(ctx, in)
		default:
			err = fmt.Errorf("unknown trigger %q", trigger)
		}
		if err != nil {
			h.fail(w, r, "order_transition_failed", err)
			return
		}
		h.writeJSON(w, r, http.StatusOK, order)
	}
}

// SetMyLocale handles PUT /orders/{orderID}/participants/me/locale
func (h *Handler) SetMyLocale(w http.ResponseWriter, r *http.Request) {
	var req localeRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	orderID := r.PathValue("orderID")
	participant, err := h.join(ctx, r, orderID)
	if err != nil {
		h.fail(w, r, "participant_join_failed", err)
		return
	}

	updated, err := h.service.SetParticipantLocale(ctx, orderID, participant.ID, req.Locale)
	if err != nil {
		h.fail(w, r, "locale_update_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, updated)
}

// SetPreference handles PUT /preferences/{browsingContextID}
func (h *Handler) SetPreference(w http.ResponseWriter, r *http.Request) {
	var req localeRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	pref, err := h.service.SetPreference(ctx, r.PathValue("browsingContextID"), r.Header.Get(httpserver.HeaderSessionID), req.Locale)
	if err != nil {
		h.fail(w, r, "preference_update_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, pref)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.service.HealthCheck(ctx)

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "order-service",
		"healthy":   healthy,
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	}
	h.writeJSON(w, r, status, response)
}

// join resolves the caller's participant from the identity headers.
// Callers presenting a user id join as staff.
func (h *Handler) join(ctx context.Context, r *http.Request, orderID string) (models.Participant, error) {
	in := JoinInput{
		OrderID:   orderID,
		SessionID: strings.TrimSpace(r.Header.Get(httpserver.HeaderSessionID)),
		Role:      models.RoleCustomer,
	}
	if userID := strings.TrimSpace(r.Header.Get(httpserver.HeaderUserID)); userID != "" {
		in.Role = models.RoleStaff
		in.EmployeeRef = &userID
	}
	return h.service.JoinAsParticipant(ctx, in)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return httpserver.DecodeJSON(w, r, h.logger, dst)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	httpserver.Fail(w, r, h.logger, action, err)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	httpserver.WriteJSON(w, r, h.logger, status, body)
}

// Register adds the order routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /tables/resolve", h.withLogging(h.ResolveTable))
	mux.HandleFunc("GET /orders/{orderID}", h.withLogging(h.GetOrder))
	mux.HandleFunc("GET /orders/{orderID}/actions", h.withLogging(h.ListActions))
	mux.HandleFunc("GET /orders/{orderID}/participants", h.withLogging(h.ListParticipants))
	mux.HandleFunc("POST /orders/{orderID}/items", h.withLogging(h.AddItem))
	mux.HandleFunc("DELETE /orders/{orderID}/items/{lineID}", h.withLogging(h.RemoveItem))
	mux.HandleFunc("POST /orders/{orderID}/items/{lineID}/advance", h.withLogging(h.AdvanceItem))
	mux.HandleFunc("POST /orders/{orderID}/place", h.withLogging(h.Transition(models.TriggerPlaceOrder)))
	mux.HandleFunc("POST /orders/{orderID}/deliver", h.withLogging(h.Transition(models.TriggerDeliver)))
	mux.HandleFunc("POST /orders/{orderID}/request-bill", h.withLogging(h.Transition(models.TriggerRequestBill)))
	mux.HandleFunc("POST /orders/{orderID}/pay", h.withLogging(h.Transition(models.TriggerPay)))
	mux.HandleFunc("POST /orders/{orderID}/close", h.withLogging(h.Transition(models.TriggerClose)))
	mux.HandleFunc("PUT /orders/{orderID}/participants/me/locale", h.withLogging(h.SetMyLocale))
	mux.HandleFunc("PUT /preferences/{browsingContextID}", h.withLogging(h.SetPreference))
	mux.HandleFunc("GET /health", h.withLogging(h.HealthCheck))
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return httpserver.WithLogging(h.logger, next)
}
