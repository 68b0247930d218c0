package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tableside/internal/models"
)

type fakeTxKey struct{}

// fakeRepo is an in-memory Repository. WithTx serializes transactions
// and restores the pre-transaction state when fn fails.
type fakeRepo struct {
	mu sync.Mutex

	orders       map[string]models.Order
	participants map[string]models.Participant
	lines        []models.OrderLine
	actions      []models.ActionLogEntry
	prefs        map[string]models.PreOrderPreference
	nextActionID int64

	// failAppend makes AppendAction fail with the given error.
	failAppend error
	// conflictsLeft makes the next N SaveTransition calls report a
	// concurrent change.
	conflictsLeft int
	// onCreateOrder runs before CreateOrder checks uniqueness. It stands
	// for a write committed by another transaction, so it survives this
	// transaction's rollback.
	onCreateOrder func(r *fakeRepo)
	// foreign holds such writes until the transaction ends.
	foreign []func(r *fakeRepo)
	txCount int
}

type fakeState struct {
	orders       map[string]models.Order
	participants map[string]models.Participant
	lines        []models.OrderLine
	actions      []models.ActionLogEntry
	prefs        map[string]models.PreOrderPreference
	nextActionID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:       map[string]models.Order{},
		participants: map[string]models.Participant{},
		prefs:        map[string]models.PreOrderPreference{},
	}
}

func (r *fakeRepo) snapshot() fakeState {
	st := fakeState{
		orders:       make(map[string]models.Order, len(r.orders)),
		participants: make(map[string]models.Participant, len(r.participants)),
		lines:        append([]models.OrderLine(nil), r.lines...),
		actions:      append([]models.ActionLogEntry(nil), r.actions...),
		prefs:        make(map[string]models.PreOrderPreference, len(r.prefs)),
		nextActionID: r.nextActionID,
	}
	for k, v := range r.orders {
		st.orders[k] = v
	}
	for k, v := range r.participants {
		st.participants[k] = v
	}
	for k, v := range r.prefs {
		st.prefs[k] = v
	}
	return st
}

func (r *fakeRepo) restore(st fakeState) {
	r.orders = st.orders
	r.participants = st.participants
	r.lines = st.lines
	r.actions = st.actions
	r.prefs = st.prefs
	r.nextActionID = st.nextActionID
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++

	st := r.snapshot()
	defer func() { r.foreign = nil }()
	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		r.restore(st)
		for _, write := range r.foreign {
			write(r)
		}
		return err
	}
	return nil
}

func (r *fakeRepo) Ping(context.Context) error { return nil }

func (r *fakeRepo) FindActiveOrder(_ context.Context, key models.TableKey) (*models.Order, error) {
	for _, o := range r.orders {
		if o.RestaurantID == key.RestaurantID && o.TableID == key.TableID && o.MenuID == key.MenuID && o.Status.IsActive() {
			found := o
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) CreateOrder(ctx context.Context, order models.Order) error {
	if hook := r.onCreateOrder; hook != nil {
		r.onCreateOrder = nil
		hook(r)
		r.foreign = append(r.foreign, hook)
	}
	key := models.TableKey{RestaurantID: order.RestaurantID, TableID: order.TableID, MenuID: order.MenuID}
	if existing, _ := r.FindActiveOrder(ctx, key); existing != nil {
		return fmt.Errorf("duplicate active order: %w", models.ErrPersistenceConflict)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeRepo) GetOrder(_ context.Context, orderID string) (models.Order, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("%s: %w", orderID, models.ErrOrderNotFound)
	}
	return o, nil
}

func (r *fakeRepo) GetOrderForUpdate(ctx context.Context, orderID string) (models.Order, error) {
	return r.GetOrder(ctx, orderID)
}

func (r *fakeRepo) GetOrderForShare(ctx context.Context, orderID string) (models.Order, error) {
	return r.GetOrder(ctx, orderID)
}

func (r *fakeRepo) SaveTransition(_ context.Context, order models.Order, expected models.OrderStatus) error {
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return models.ErrPersistenceConflict
	}
	stored, ok := r.orders[order.ID]
	if !ok || stored.Status != expected {
		return models.ErrPersistenceConflict
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeRepo) CreateParticipant(_ context.Context, p models.Participant) (bool, error) {
	for _, existing := range r.participants {
		if existing.OrderID == p.OrderID && existing.SessionID == p.SessionID {
			return false, nil
		}
	}
	r.participants[p.ID] = p
	return true, nil
}

func (r *fakeRepo) GetParticipant(_ context.Context, orderID, participantID string) (models.Participant, error) {
	p, ok := r.participants[participantID]
	if !ok || p.OrderID != orderID {
		return models.Participant{}, fmt.Errorf("%s: %w", participantID, models.ErrParticipantNotFound)
	}
	return p, nil
}

func (r *fakeRepo) FindParticipantBySession(_ context.Context, orderID, sessionID string) (*models.Participant, error) {
	for _, p := range r.participants {
		if p.OrderID == orderID && p.SessionID == sessionID {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) ListParticipants(_ context.Context, orderID string) ([]models.Participant, error) {
	out := []models.Participant{}
	for _, p := range r.participants {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateParticipantLocale(_ context.Context, orderID, participantID, locale string) error {
	p, ok := r.participants[participantID]
	if !ok || p.OrderID != orderID {
		return models.ErrParticipantNotFound
	}
	p.PreferredLocale = &locale
	r.participants[participantID] = p
	return nil
}

func (r *fakeRepo) InsertLine(_ context.Context, line models.OrderLine) error {
	r.lines = append(r.lines, line)
	return nil
}

func (r *fakeRepo) GetLineForUpdate(_ context.Context, orderID, lineID string) (models.OrderLine, error) {
	for _, l := range r.lines {
		if l.ID == lineID && l.OrderID == orderID {
			return l, nil
		}
	}
	return models.OrderLine{}, fmt.Errorf("%s: %w", lineID, models.ErrLineNotFound)
}

func (r *fakeRepo) UpdateLineStatus(_ context.Context, line models.OrderLine, expected models.LineStatus) error {
	for i, l := range r.lines {
		if l.ID == line.ID && l.OrderID == line.OrderID {
			if l.Status != expected {
				return models.ErrPersistenceConflict
			}
			r.lines[i].Status = line.Status
			r.lines[i].UpdatedAt = line.UpdatedAt
			return nil
		}
	}
	return models.ErrPersistenceConflict
}

func (r *fakeRepo) PromoteAddedLines(_ context.Context, orderID string, at time.Time) ([]string, error) {
	var ids []string
	for i, l := range r.lines {
		if l.OrderID == orderID && l.Status == models.LineAdded {
			r.lines[i].Status = models.LineOrdered
			r.lines[i].UpdatedAt = at
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}

func (r *fakeRepo) ListLines(_ context.Context, orderID string) (models.Lines, error) {
	out := models.Lines{}
	for _, l := range r.lines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeRepo) AppendAction(_ context.Context, entry models.ActionLogEntry) (int64, error) {
	if r.failAppend != nil {
		return 0, r.failAppend
	}
	r.nextActionID++
	entry.ID = r.nextActionID
	r.actions = append(r.actions, entry)
	return entry.ID, nil
}

func (r *fakeRepo) ListActions(_ context.Context, orderID string) ([]models.ActionLogEntry, error) {
	out := []models.ActionLogEntry{}
	for _, a := range r.actions {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetPreference(_ context.Context, browsingContextID, sessionID string) (*models.PreOrderPreference, error) {
	p, ok := r.prefs[browsingContextID+"|"+sessionID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *fakeRepo) UpsertPreference(_ context.Context, p models.PreOrderPreference) error {
	r.prefs[p.BrowsingContextID+"|"+p.SessionID] = p
	return nil
}

// fakeBroadcaster records published events and optionally fails.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []models.OrderEvent
	err    error
}

func (b *fakeBroadcaster) PublishOrderEvent(_ context.Context, event models.OrderEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, event)
	return nil
}

func (b *fakeBroadcaster) types() []models.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}
