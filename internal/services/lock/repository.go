package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"tableside/internal/database"
	"tableside/internal/models"
)

// Repository persists resource locks. Conditional writes report whether
// they matched a row instead of failing.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Get(ctx context.Context, ref models.ResourceRef) (*models.ResourceLock, error)
	GetForUpdate(ctx context.Context, ref models.ResourceRef) (*models.ResourceLock, error)
	Insert(ctx context.Context, lock models.ResourceLock) error
	Refresh(ctx context.Context, ref models.ResourceRef, sessionID string, at time.Time) (bool, error)
	// TakeOver replaces a holder whose refreshed_at is not after cutoff.
	TakeOver(ctx context.Context, lock models.ResourceLock, cutoff time.Time) (bool, error)
	Delete(ctx context.Context, ref models.ResourceRef, sessionID string) (bool, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type PostgresRepository struct {
	db *database.DB
}

func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithTx(ctx, fn)
}

func (r *PostgresRepository) Get(ctx context.Context, ref models.ResourceRef) (*models.ResourceLock, error) {
	return r.get(ctx, database.GetLockSQL, ref)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, ref models.ResourceRef) (*models.ResourceLock, error) {
	return r.get(ctx, database.GetLockForUpdateSQL, ref)
}

func (r *PostgresRepository) get(ctx context.Context, query string, ref models.ResourceRef) (*models.ResourceLock, error) {
	var l models.ResourceLock
	err := r.db.QueryRow(ctx, query, ref.Type, ref.ID).
		Scan(&l.ResourceType, &l.ResourceID, &l.OwnerID, &l.SessionID, &l.AcquiredAt, &l.RefreshedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lock: %w", database.MapError(err))
	}
	return &l, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, l models.ResourceLock) error {
	_, err := r.db.Exec(ctx, database.InsertLockSQL, l.ResourceType, l.ResourceID, l.OwnerID, l.SessionID, l.AcquiredAt)
	if err != nil {
		return fmt.Errorf("failed to insert lock: %w", database.MapError(err))
	}
	return nil
}

func (r *PostgresRepository) Refresh(ctx context.Context, ref models.ResourceRef, sessionID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, database.RefreshLockSQL, ref.Type, ref.ID, sessionID, at)
	if err != nil {
		return false, fmt.Errorf("failed to refresh lock: %w", database.MapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) TakeOver(ctx context.Context, l models.ResourceLock, cutoff time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, database.TakeOverLockSQL, l.ResourceType, l.ResourceID, l.OwnerID, l.SessionID, l.AcquiredAt, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to take over lock: %w", database.MapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, ref models.ResourceRef, sessionID string) (bool, error) {
	tag, err := r.db.Exec(ctx, database.DeleteLockSQL, ref.Type, ref.ID, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete lock: %w", database.MapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, database.DeleteStaleLocksSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale locks: %w", database.MapError(err))
	}
	return tag.RowsAffected(), nil
}
