package order

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
	"tableside/internal/clock"
	"tableside/internal/logger"
	"tableside/internal/models"
	"tableside/internal/pricing"
)

// Broadcaster receives committed changes. Publishing happens after the
// transaction commits and a failure never undoes the change.
type Broadcaster interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
}

// TotalsCalculator derives persisted totals from line prices and a tip.
type TotalsCalculator interface {
	ComputeTotals(prices []decimal.Decimal, tip decimal.Decimal) pricing.Totals
}

// Service coordinates every mutation of an order aggregate. Each
// operation runs in one transaction that also writes its action log row.
type Service struct {
	repo        Repository
	prices      pricing.PriceLookup
	totals      TotalsCalculator
	broadcaster Broadcaster
	clock       clock.Clock
	logger      *logger.Logger
	sem         *semaphore.Weighted
}

type Option func(*Service)

// WithClock replaces the wall clock, used by tests.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithMaxConcurrent bounds the number of transactions in flight.
func WithMaxConcurrent(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(n)
		}
	}
}

func NewService(repo Repository, prices pricing.PriceLookup, totals TotalsCalculator, broadcaster Broadcaster, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		prices:      prices,
		totals:      totals,
		broadcaster: broadcaster,
		clock:       clock.NewSystem(),
		logger:      log,
		sem:         semaphore.NewWeighted(50),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JoinInput describes the caller attaching to an order.
type JoinInput struct {
	OrderID     string      `json:"order_id"`
	SessionID   string      `json:"session_id"`
	Role        models.Role `json:"role"`
	EmployeeRef *string     `json:"employee_ref,omitempty"`
}

// LineInput addresses one line on behalf of a participant.
type LineInput struct {
	OrderID       string `json:"order_id"`
	ParticipantID string `json:"participant_id"`
	LineID        string `json:"line_id"`
}

// AddItemInput adds a menu item on behalf of a participant.
type AddItemInput struct {
	OrderID       string `json:"order_id"`
	ParticipantID string `json:"participant_id"`
	MenuItemID    string `json:"menu_item_id"`
}

// AdvanceLineInput moves a line forward through fulfilment.
type AdvanceLineInput struct {
	LineInput
	Target models.LineStatus `json:"target"`
}

// TransitionInput drives an order-level transition. Tip is only
// honoured by Pay.
type TransitionInput struct {
	OrderID       string           `json:"order_id"`
	ParticipantID string           `json:"participant_id"`
	Tip           *decimal.Decimal `json:"tip,omitempty"`
}

// ResolveOrCreateOrder returns the active order for the table, creating
// it when none exists. Concurrent callers for the same table converge on
// one order.
func (s *Service) ResolveOrCreateOrder(ctx context.Context, key models.TableKey) (models.Order, error) {
	if err := key.Validate(); err != nil {
		return models.Order{}, err
	}

	var (
		order   models.Order
		created bool
	)
	err := s.execute(ctx, func(ctx context.Context) error {
		created = false
		existing, err := s.repo.FindActiveOrder(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			order = *existing
			return nil
		}

		now := s.clock.Now()
		order = models.Order{
			ID:           uuid.NewString(),
			RestaurantID: key.RestaurantID,
			TableID:      key.TableID,
			MenuID:       key.MenuID,
			Status:       models.OrderOpened,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		created = true
		// A concurrent creator wins the partial unique index; the retry
		// then reads its order.
		return s.repo.CreateOrder(ctx, order)
	})
	if err != nil {
		return models.Order{}, err
	}

	if created {
		s.logger.Info("order_opened", "Opened order for table", logger.RequestID(ctx), map[string]interface{}{
			"order_id":      order.ID,
			"restaurant_id": order.RestaurantID,
			"table_id":      order.TableID,
		})
		s.publish(ctx, models.NewOrderEvent(models.EventOrderOpened, order, order.CreatedAt))
	}
	return order, nil
}

// JoinAsParticipant returns the caller's participant on the order,
// creating it on first contact. A new participant inherits the locale
// chosen before the order existed.
func (s *Service) JoinAsParticipant(ctx context.Context, in JoinInput) (models.Participant, error) {
	if err := models.ValidateJoin(in.SessionID, in.Role, in.EmployeeRef); err != nil {
		return models.Participant{}, err
	}

	var (
		order       models.Order
		participant models.Participant
		created     bool
	)
	err := s.execute(ctx, func(ctx context.Context) error {
		created = false
		var err error
		if order, err = s.repo.GetOrder(ctx, in.OrderID); err != nil {
			return err
		}

		existing, err := s.repo.FindParticipantBySession(ctx, order.ID, in.SessionID)
		if err != nil {
			return err
		}
		if existing != nil {
			participant = *existing
			return nil
		}
		if !order.Status.Admits(in.Role) {
			return &models.TransitionError{Entity: "order", From: order.Status.String(), Event: "join"}
		}

		participant = models.Participant{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			SessionID:   in.SessionID,
			Role:        in.Role,
			EmployeeRef: in.EmployeeRef,
			CreatedAt:   s.clock.Now(),
		}
		pref, err := s.repo.GetPreference(ctx, order.MenuID, in.SessionID)
		if err != nil {
			return err
		}
		if pref != nil {
			locale := pref.Locale
			participant.PreferredLocale = &locale
		}

		inserted, err := s.repo.CreateParticipant(ctx, participant)
		if err != nil {
			return err
		}
		if !inserted {
			// Same session joined concurrently.
			existing, err := s.repo.FindParticipantBySession(ctx, order.ID, in.SessionID)
			if err != nil {
				return err
			}
			if existing == nil {
				return models.ErrPersistenceConflict
			}
			participant = *existing
			return nil
		}
		created = true
		return nil
	})
	if err != nil {
		return models.Participant{}, err
	}

	if created {
		event := models.NewOrderEvent(models.EventParticipantJoined, order, participant.CreatedAt)
		event.ParticipantID = participant.ID
		s.publish(ctx, event)
	}
	return participant, nil
}

// AddItem appends a line priced at the current catalog price. Concurrent
// adds to one order never block each other.
func (s *Service) AddItem(ctx context.Context, in AddItemInput) (models.OrderLine, error) {
	if strings.TrimSpace(in.MenuItemID) == "" {
		return models.OrderLine{}, models.ValidationError{Field: "menu_item_id", Message: "menu item id is required"}
	}

	// Priced before the transaction so no row lock is held across the
	// catalog read.
	price, err := s.prices.Price(ctx, in.MenuItemID)
	if err != nil {
		return models.OrderLine{}, err
	}

	var (
		order models.Order
		line  models.OrderLine
	)
	err = s.execute(ctx, func(ctx context.Context) error {
		var err error
		if order, err = s.repo.GetOrderForShare(ctx, in.OrderID); err != nil {
			return err
		}
		if !order.Status.AcceptsItems() {
			return &models.TransitionError{Entity: "order", From: order.Status.String(), Event: string(models.ActionAddItem)}
		}
		if _, err := s.repo.GetParticipant(ctx, order.ID, in.ParticipantID); err != nil {
			return err
		}

		now := s.clock.Now()
		line = models.OrderLine{
			ID:            uuid.NewString(),
			OrderID:       order.ID,
			MenuItemID:    in.MenuItemID,
			ParticipantID: in.ParticipantID,
			PriceSnapshot: price,
			Status:        models.LineAdded,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.InsertLine(ctx, line); err != nil {
			return err
		}
		return s.appendAction(ctx, order.ID, in.ParticipantID, &line.ID, models.ActionAddItem, nil)
	})
	if err != nil {
		return models.OrderLine{}, err
	}

	event := models.NewOrderEvent(models.EventItemAdded, order, line.CreatedAt).WithLine(line)
	event.ParticipantID = in.ParticipantID
	event.Action = models.ActionAddItem
	s.publish(ctx, event)
	return line, nil
}

// RemoveItem marks a line removed. Removing a line that is already
// removed succeeds without writing anything.
func (s *Service) RemoveItem(ctx context.Context, in LineInput) (models.OrderLine, error) {
	var (
		order   models.Order
		line    models.OrderLine
		changed bool
	)
	err := s.execute(ctx, func(ctx context.Context) error {
		changed = false
		var err error
		if order, err = s.repo.GetOrderForShare(ctx, in.OrderID); err != nil {
			return err
		}
		if _, err := s.repo.GetParticipant(ctx, order.ID, in.ParticipantID); err != nil {
			return err
		}
		if line, err = s.repo.GetLineForUpdate(ctx, order.ID, in.LineID); err != nil {
			return err
		}
		if line.Status == models.LineRemoved {
			return nil
		}
		if !order.Status.AcceptsItems() {
			return &models.TransitionError{Entity: "order", From: order.Status.String(), Event: string(models.ActionRemoveItem)}
		}
		if !line.Status.Removable() {
			return &models.TransitionError{Entity: "order line", From: line.Status.String(), Event: "remove"}
		}

		previous := line.Status
		line.Status = models.LineRemoved
		line.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateLineStatus(ctx, line, previous); err != nil {
			return err
		}
		changed = true
		return s.appendAction(ctx, order.ID, in.ParticipantID, &line.ID, models.ActionRemoveItem, nil)
	})
	if err != nil {
		return models.OrderLine{}, err
	}

	if changed {
		event := models.NewOrderEvent(models.EventItemRemoved, order, line.UpdatedAt).WithLine(line)
		event.ParticipantID = in.ParticipantID
		event.Action = models.ActionRemoveItem
		s.publish(ctx, event)
	}
	return line, nil
}

// AdvanceLine moves a line forward through preparation. Only staff may
// advance lines.
func (s *Service) AdvanceLine(ctx context.Context, in AdvanceLineInput) (models.OrderLine, error) {
	var (
		order models.Order
		line  models.OrderLine
	)
	err := s.execute(ctx, func(ctx context.Context) error {
		var err error
		if order, err = s.repo.GetOrderForShare(ctx, in.OrderID); err != nil {
			return err
		}
		if err := s.requireStaff(ctx, order.ID, in.ParticipantID); err != nil {
			return err
		}
		if !order.Status.IsActive() {
			return &models.TransitionError{Entity: "order", From: order.Status.String(), Event: string(models.ActionAdvanceItem)}
		}
		if line, err = s.repo.GetLineForUpdate(ctx, order.ID, in.LineID); err != nil {
			return err
		}
		if err := models.CheckLineAdvance(line.Status, in.Target); err != nil {
			return err
		}

		previous := line.Status
		line.Status = in.Target
		line.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateLineStatus(ctx, line, previous); err != nil {
			return err
		}
		notes := previous.String() + " -> " + line.Status.String()
		return s.appendAction(ctx, order.ID, in.ParticipantID, &line.ID, models.ActionAdvanceItem, &notes)
	})
	if err != nil {
		return models.OrderLine{}, err
	}

	event := models.NewOrderEvent(models.EventItemAdvanced, order, line.UpdatedAt).WithLine(line)
	event.ParticipantID = in.ParticipantID
	event.Action = models.ActionAdvanceItem
	s.publish(ctx, event)
	return line, nil
}

// PlaceOrder submits the order to the kitchen, promoting every added
// line to ordered.
func (s *Service) PlaceOrder(ctx context.Context, in TransitionInput) (models.Order, error) {
	return s.transition(ctx, in, models.TriggerPlaceOrder)
}

// Deliver records that the kitchen has served the order. Staff only.
func (s *Service) Deliver(ctx context.Context, in TransitionInput) (models.Order, error) {
	return s.transition(ctx, in, models.TriggerDeliver)
}

// RequestBill freezes item changes and computes the bill.
func (s *Service) RequestBill(ctx context.Context, in TransitionInput) (models.Order, error) {
	return s.transition(ctx, in, models.TriggerRequestBill)
}

// Pay settles the bill with an optional tip. Staff only.
func (s *Service) Pay(ctx context.Context, in TransitionInput) (models.Order, error) {
	return s.transition(ctx, in, models.TriggerPay)
}

// Close archives a paid order. Staff only.
func (s *Service) Close(ctx context.Context, in TransitionInput) (models.Order, error) {
	return s.transition(ctx, in, models.TriggerClose)
}

var staffTriggers = map[models.OrderTrigger]bool{
	models.TriggerDeliver: true,
	models.TriggerPay:     true,
	models.TriggerClose:   true,
}

func (s *Service) transition(ctx context.Context, in TransitionInput, trigger models.OrderTrigger) (models.Order, error) {
	if in.Tip != nil {
		if trigger != models.TriggerPay {
			return models.Order{}, models.ValidationError{Field: "tip", Message: "tip is only accepted when paying"}
		}
		if in.Tip.IsNegative() {
			return models.Order{}, models.ValidationError{Field: "tip", Message: "tip must not be negative"}
		}
	}

	var (
		order    models.Order
		previous models.OrderStatus
	)
	err := s.execute(ctx, func(ctx context.Context) error {
		var err error
		if order, err = s.repo.GetOrderForUpdate(ctx, in.OrderID); err != nil {
			return err
		}
		if staffTriggers[trigger] {
			if err := s.requireStaff(ctx, order.ID, in.ParticipantID); err != nil {
				return err
			}
		} else if _, err := s.repo.GetParticipant(ctx, order.ID, in.ParticipantID); err != nil {
			return err
		}

		previous = order.Status
		now := s.clock.Now()
		if err := order.Transition(trigger, now); err != nil {
			return err
		}
		if trigger == models.TriggerPlaceOrder {
			if _, err := s.repo.PromoteAddedLines(ctx, order.ID, now); err != nil {
				return err
			}
		}

		lines, err := s.repo.ListLines(ctx, order.ID)
		if err != nil {
			return err
		}
		tip := order.Tip
		if in.Tip != nil {
			tip = *in.Tip
		}
		totals := s.totals.ComputeTotals(lines.ActivePrices(), tip)
		order.Nett = totals.Nett
		order.Tax = totals.Tax
		order.Service = totals.Service
		order.Tip = totals.Tip
		order.Gross = totals.Gross

		if err := s.repo.SaveTransition(ctx, order, previous); err != nil {
			return err
		}
		return s.appendAction(ctx, order.ID, in.ParticipantID, nil, trigger.Action(), nil)
	})
	if err != nil {
		return models.Order{}, err
	}

	s.logger.Info("order_transitioned", "Order changed status", logger.RequestID(ctx), map[string]interface{}{
		"order_id": order.ID,
		"from":     previous.String(),
		"to":       order.Status.String(),
		"gross":    order.Gross.StringFixed(2),
	})

	event := models.NewOrderEvent(models.EventOrderTransitioned, order, order.UpdatedAt)
	event.PreviousStatus = &previous
	event.ParticipantID = in.ParticipantID
	event.Action = trigger.Action()
	s.publish(ctx, event)
	return order, nil
}

// SetPreference records the locale chosen while browsing a menu before
// joining an order.
func (s *Service) SetPreference(ctx context.Context, browsingContextID, sessionID, locale string) (models.PreOrderPreference, error) {
	if strings.TrimSpace(browsingContextID) == "" {
		return models.PreOrderPreference{}, models.ValidationError{Field: "browsing_context_id", Message: "browsing context id is required"}
	}
	if strings.TrimSpace(sessionID) == "" {
		return models.PreOrderPreference{}, models.ValidationError{Field: "session_id", Message: "session id is required"}
	}
	normalized, err := models.NormalizeLocale(locale)
	if err != nil {
		return models.PreOrderPreference{}, err
	}

	pref := models.PreOrderPreference{
		BrowsingContextID: browsingContextID,
		SessionID:         sessionID,
		Locale:            normalized,
		UpdatedAt:         s.clock.Now(),
	}
	err = s.execute(ctx, func(ctx context.Context) error {
		return s.repo.UpsertPreference(ctx, pref)
	})
	if err != nil {
		return models.PreOrderPreference{}, err
	}
	return pref, nil
}

// SetParticipantLocale changes a participant's locale after joining. It
// does not touch the pre-order preference.
func (s *Service) SetParticipantLocale(ctx context.Context, orderID, participantID, locale string) (models.Participant, error) {
	normalized, err := models.NormalizeLocale(locale)
	if err != nil {
		return models.Participant{}, err
	}

	var (
		order       models.Order
		participant models.Participant
	)
	err = s.execute(ctx, func(ctx context.Context) error {
		var err error
		if order, err = s.repo.GetOrder(ctx, orderID); err != nil {
			return err
		}
		if participant, err = s.repo.GetParticipant(ctx, order.ID, participantID); err != nil {
			return err
		}
		if err := s.repo.UpdateParticipantLocale(ctx, order.ID, participant.ID, normalized); err != nil {
			return err
		}
		participant.PreferredLocale = &normalized
		return s.appendAction(ctx, order.ID, participant.ID, nil, models.ActionSetLocale, &normalized)
	})
	if err != nil {
		return models.Participant{}, err
	}

	event := models.NewOrderEvent(models.EventLocaleChanged, order, s.clock.Now())
	event.ParticipantID = participant.ID
	event.Action = models.ActionSetLocale
	s.publish(ctx, event)
	return participant, nil
}

// GetOrder returns the order with its lines and derived counts.
func (s *Service) GetOrder(ctx context.Context, orderID string) (models.OrderSummary, error) {
	var summary models.OrderSummary
	err := s.execute(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		lines, err := s.repo.ListLines(ctx, order.ID)
		if err != nil {
			return err
		}
		participants, err := s.repo.ListParticipants(ctx, order.ID)
		if err != nil {
			return err
		}
		summary = models.Summarize(order, lines, participants)
		return nil
	})
	return summary, err
}

// ListActions returns the order's history in commit order.
func (s *Service) ListActions(ctx context.Context, orderID string) ([]models.ActionLogEntry, error) {
	var entries []models.ActionLogEntry
	err := s.execute(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
			return err
		}
		var err error
		entries, err = s.repo.ListActions(ctx, orderID)
		return err
	})
	return entries, err
}

// ListParticipants returns everyone who joined the order.
func (s *Service) ListParticipants(ctx context.Context, orderID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.execute(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
			return err
		}
		var err error
		participants, err = s.repo.ListParticipants(ctx, orderID)
		return err
	})
	return participants, err
}

// execute runs fn in a transaction, retrying once when it lost a race
// on a row another transaction changed.
func (s *Service) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	err := s.repo.WithTx(ctx, fn)
	if errors.Is(err, models.ErrPersistenceConflict) {
		s.logger.Debug("persistence_conflict", "Retrying after concurrent change", logger.RequestID(ctx), map[string]interface{}{
			"error": err.Error(),
		})
		err = s.repo.WithTx(ctx, fn)
	}
	return err
}

func (s *Service) requireStaff(ctx context.Context, orderID, participantID string) error {
	p, err := s.repo.GetParticipant(ctx, orderID, participantID)
	if err != nil {
		return err
	}
	if p.Role != models.RoleStaff {
		return models.ErrForbidden
	}
	return nil
}

func (s *Service) appendAction(ctx context.Context, orderID, participantID string, lineID *string, action models.Action, notes *string) error {
	_, err := s.repo.AppendAction(ctx, models.ActionLogEntry{
		OrderID:       orderID,
		ParticipantID: participantID,
		LineID:        lineID,
		Action:        action,
		Notes:         notes,
		CreatedAt:     s.clock.Now(),
	})
	return err
}

func (s *Service) publish(ctx context.Context, event models.OrderEvent) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish order event", logger.RequestID(ctx), err, map[string]interface{}{
			"order_id":   event.OrderID,
			"event_type": string(event.Type),
		})
	}
}

// HealthCheck reports whether the backing store answers.
func (s *Service) HealthCheck(ctx context.Context) bool {
	return s.repo.Ping(ctx) == nil
}
