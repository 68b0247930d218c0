package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"tableside/internal/database"
	"tableside/internal/models"
)

// PostgresRepository implements Repository on the shared pool.
type PostgresRepository struct {
	db *database.DB
}

func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithTx(ctx, fn)
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PostgresRepository) FindActiveOrder(ctx context.Context, key models.TableKey) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, database.FindActiveOrderSQL, key.RestaurantID, key.TableID, key.MenuID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active order: %w", database.MapError(err))
	}
	return &order, nil
}

func (r *PostgresRepository) CreateOrder(ctx context.Context, order models.Order) error {
	_, err := r.db.Exec(ctx, database.InsertOrderSQL,
		order.ID, order.RestaurantID, order.TableID, order.MenuID, int16(order.Status), order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", database.MapError(err))
	}
	return nil
}

func (r *PostgresRepository) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	return r.getOrder(ctx, database.GetOrderSQL, orderID)
}

func (r *PostgresRepository) GetOrderForUpdate(ctx context.Context, orderID string) (models.Order, error) {
	return r.getOrder(ctx, database.GetOrderForUpdateSQL, orderID)
}

func (r *PostgresRepository) GetOrderForShare(ctx context.Context, orderID string) (models.Order, error) {
	return r.getOrder(ctx, database.GetOrderForShareSQL, orderID)
}

func (r *PostgresRepository) getOrder(ctx context.Context, query, orderID string) (models.Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		return models.Order{}, notFoundOr(err, models.ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (r *PostgresRepository) SaveTransition(ctx context.Context, order models.Order, expected models.OrderStatus) error {
	tag, err := r.db.Exec(ctx, database.UpdateOrderTransitionSQL,
		order.ID, int16(order.Status),
		order.Nett, order.Tax, order.Service, order.Tip, order.Gross,
		order.UpdatedAt, order.OrderedAt, order.DeliveredAt,
		order.BillRequestedAt, order.PaidAt, order.ClosedAt,
		int16(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", database.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s left %s concurrently: %w", order.ID, expected, models.ErrPersistenceConflict)
	}
	return nil
}

func (r *PostgresRepository) CreateParticipant(ctx context.Context, p models.Participant) (bool, error) {
	tag, err := r.db.Exec(ctx, database.InsertParticipantSQL,
		p.ID, p.OrderID, p.SessionID, string(p.Role), p.EmployeeRef, p.PreferredLocale, p.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert participant: %w", database.MapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) GetParticipant(ctx context.Context, orderID, participantID string) (models.Participant, error) {
	p, err := scanParticipant(r.db.QueryRow(ctx, database.GetParticipantSQL, orderID, participantID))
	if err != nil {
		return models.Participant{}, notFoundOr(err, models.ErrParticipantNotFound, participantID)
	}
	return p, nil
}

func (r *PostgresRepository) FindParticipantBySession(ctx context.Context, orderID, sessionID string) (*models.Participant, error) {
	p, err := scanParticipant(r.db.QueryRow(ctx, database.FindParticipantBySessionSQL, orderID, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find participant: %w", database.MapError(err))
	}
	return &p, nil
}

func (r *PostgresRepository) ListParticipants(ctx context.Context, orderID string) ([]models.Participant, error) {
	rows, err := r.db.Query(ctx, database.ListParticipantsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", database.MapError(err))
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, database.MapError(rows.Err())
}

func (r *PostgresRepository) UpdateParticipantLocale(ctx context.Context, orderID, participantID, locale string) error {
	tag, err := r.db.Exec(ctx, database.UpdateParticipantLocaleSQL, orderID, participantID, locale)
	if err != nil {
		return fmt.Errorf("failed to update participant locale: %w", database.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", participantID, models.ErrParticipantNotFound)
	}
	return nil
}

func (r *PostgresRepository) InsertLine(ctx context.Context, line models.OrderLine) error {
	_, err := r.db.Exec(ctx, database.InsertLineSQL,
		line.ID, line.OrderID, line.ParticipantID, line.MenuItemID, line.PriceSnapshot, int16(line.Status), line.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order line: %w", database.MapError(err))
	}
	return nil
}

func (r *PostgresRepository) GetLineForUpdate(ctx context.Context, orderID, lineID string) (models.OrderLine, error) {
	line, err := scanLine(r.db.QueryRow(ctx, database.GetLineForUpdateSQL, orderID, lineID))
	if err != nil {
		return models.OrderLine{}, notFoundOr(err, models.ErrLineNotFound, lineID)
	}
	return line, nil
}

func (r *PostgresRepository) UpdateLineStatus(ctx context.Context, line models.OrderLine, expected models.LineStatus) error {
	tag, err := r.db.Exec(ctx, database.UpdateLineStatusSQL,
		line.OrderID, line.ID, int16(line.Status), line.UpdatedAt, int16(expected))
	if err != nil {
		return fmt.Errorf("failed to update order line: %w", database.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line %s left %s concurrently: %w", line.ID, expected, models.ErrPersistenceConflict)
	}
	return nil
}

func (r *PostgresRepository) PromoteAddedLines(ctx context.Context, orderID string, at time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, database.PromoteAddedLinesSQL, orderID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to promote lines: %w", database.MapError(err))
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to promote lines: %w", database.MapError(err))
	}
	return ids, nil
}

func (r *PostgresRepository) ListLines(ctx context.Context, orderID string) (models.Lines, error) {
	rows, err := r.db.Query(ctx, database.ListLinesSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order lines: %w", database.MapError(err))
	}
	defer rows.Close()

	lines := models.Lines{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, database.MapError(rows.Err())
}

func (r *PostgresRepository) AppendAction(ctx context.Context, entry models.ActionLogEntry) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, database.InsertActionSQL,
		entry.OrderID, entry.ParticipantID, entry.LineID, string(entry.Action), entry.Notes, entry.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to append action log: %w", database.MapError(err))
	}
	return id, nil
}

func (r *PostgresRepository) ListActions(ctx context.Context, orderID string) ([]models.ActionLogEntry, error) {
	rows, err := r.db.Query(ctx, database.ListActionsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", database.MapError(err))
	}
	defer rows.Close()

	entries := []models.ActionLogEntry{}
	for rows.Next() {
		var (
			e      models.ActionLogEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.ParticipantID, &e.LineID, &action, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		e.Action = models.Action(action)
		entries = append(entries, e)
	}
	return entries, database.MapError(rows.Err())
}

func (r *PostgresRepository) GetPreference(ctx context.Context, browsingContextID, sessionID string) (*models.PreOrderPreference, error) {
	var p models.PreOrderPreference
	err := r.db.QueryRow(ctx, database.GetPreferenceSQL, browsingContextID, sessionID).
		Scan(&p.BrowsingContextID, &p.SessionID, &p.Locale, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get preference: %w", database.MapError(err))
	}
	return &p, nil
}

func (r *PostgresRepository) UpsertPreference(ctx context.Context, p models.PreOrderPreference) error {
	_, err := r.db.Exec(ctx, database.UpsertPreferenceSQL, p.BrowsingContextID, p.SessionID, p.Locale, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert preference: %w", database.MapError(err))
	}
	return nil
}

// notFoundOr maps pgx.ErrNoRows to the given not-found sentinel.
func notFoundOr(err, notFound error, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", id, notFound)
	}
	if errors.Is(err, models.ErrCorruptStatus) {
		return err
	}
	return database.MapError(err)
}

func scanOrder(row pgx.Row) (models.Order, error) {
	var (
		o      models.Order
		status int16
	)
	err := row.Scan(
		&o.ID, &o.RestaurantID, &o.TableID, &o.MenuID, &status,
		&o.Nett, &o.Tax, &o.Service, &o.Tip, &o.Gross,
		&o.CreatedAt, &o.UpdatedAt, &o.OrderedAt, &o.DeliveredAt,
		&o.BillRequestedAt, &o.PaidAt, &o.ClosedAt,
	)
	if err != nil {
		return models.Order{}, err
	}
	if o.Status, err = models.ParseOrderStatus(status); err != nil {
		return models.Order{}, fmt.Errorf("order %s: %w", o.ID, err)
	}
	return o, nil
}

func scanParticipant(row pgx.Row) (models.Participant, error) {
	var (
		p    models.Participant
		role string
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.SessionID, &role, &p.EmployeeRef, &p.PreferredLocale, &p.CreatedAt); err != nil {
		return models.Participant{}, err
	}
	p.Role = models.Role(role)
	return p, nil
}

func scanLine(row pgx.Row) (models.OrderLine, error) {
	var (
		l      models.OrderLine
		status int16
	)
	err := row.Scan(&l.ID, &l.OrderID, &l.ParticipantID, &l.MenuItemID, &l.PriceSnapshot, &status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return models.OrderLine{}, err
	}
	if l.Status, err = models.ParseLineStatus(status); err != nil {
		return models.OrderLine{}, fmt.Errorf("order line %s: %w", l.ID, err)
	}
	return l, nil
}
