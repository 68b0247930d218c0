package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"tableside/internal/clock"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// Service grants advisory exclusive locks over named resources. A lock
// whose holder has not refreshed it within ttl counts as free.
type Service struct {
	repo   Repository
	ttl    time.Duration
	clock  clock.Clock
	logger *logger.Logger
}

func NewService(repo Repository, ttl time.Duration, c clock.Clock, log *logger.Logger) *Service {
	if c == nil {
		c = clock.NewSystem()
	}
	return &Service{repo: repo, ttl: ttl, clock: c, logger: log}
}

// Acquire claims ref for (ownerID, sessionID). It returns the lock as
// stored after the call: the caller's when acquired or already held, the
// other holder's otherwise. Acquiring a lock already held by the same
// session refreshes it.
func (s *Service) Acquire(ctx context.Context, ref models.ResourceRef, ownerID, sessionID string) (models.LockResult, models.ResourceLock, error) {
	if err := validateHolder(ref, ownerID, sessionID); err != nil {
		return "", models.ResourceLock{}, err
	}

	var (
		result models.LockResult
		held   models.ResourceLock
	)
	attempt := func(ctx context.Context) error {
		now := s.clock.Now()
		mine := models.ResourceLock{
			ResourceType: ref.Type,
			ResourceID:   ref.ID,
			OwnerID:      ownerID,
			SessionID:    sessionID,
			AcquiredAt:   now,
			RefreshedAt:  now,
		}

		existing, err := s.repo.GetForUpdate(ctx, ref)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			// A concurrent insert surfaces as a persistence conflict and
			// the retry sees the winner's row.
			if err := s.repo.Insert(ctx, mine); err != nil {
				return err
			}
			result, held = models.LockAcquired, mine

		case existing.HeldBy(ownerID, sessionID):
			if _, err := s.repo.Refresh(ctx, ref, sessionID, now); err != nil {
				return err
			}
			held = *existing
			held.RefreshedAt = now
			result = models.LockAlreadyHeld

		case existing.Expired(now, s.ttl):
			ok, err := s.repo.TakeOver(ctx, mine, now.Add(-s.ttl))
			if err != nil {
				return err
			}
			if !ok {
				return models.ErrPersistenceConflict
			}
			s.logger.Info("lock_taken_over", "Took over expired lock", logger.RequestID(ctx), map[string]interface{}{
				"resource_type":    ref.Type,
				"resource_id":      ref.ID,
				"previous_owner":   existing.OwnerID,
				"previous_session": existing.SessionID,
			})
			result, held = models.LockAcquired, mine

		default:
			result, held = models.LockHeldByOther, *existing
		}
		return nil
	}

	err := s.repo.WithTx(ctx, attempt)
	if errors.Is(err, models.ErrPersistenceConflict) {
		err = s.repo.WithTx(ctx, attempt)
	}
	if err != nil {
		return "", models.ResourceLock{}, err
	}
	return result, held, nil
}

// Release drops the lock if sessionID holds it. Releasing an unheld or
// foreign-held lock is a no-op.
func (s *Service) Release(ctx context.Context, ref models.ResourceRef, sessionID string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(sessionID) == "" {
		return models.ValidationError{Field: "session_id", Message: "session id is required"}
	}

	released, err := s.repo.Delete(ctx, ref, sessionID)
	if err != nil {
		return err
	}
	if released {
		s.logger.Debug("lock_released", "Released lock", logger.RequestID(ctx), map[string]interface{}{
			"resource_type": ref.Type,
			"resource_id":   ref.ID,
		})
	}
	return nil
}

// GetLock returns the live holder of ref, or nil when the resource is
// free or its lock has expired.
func (s *Service) GetLock(ctx context.Context, ref models.ResourceRef) (*models.ResourceLock, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	l, err := s.repo.Get(ctx, ref)
	if err != nil || l == nil {
		return nil, err
	}
	if l.Expired(s.clock.Now(), s.ttl) {
		return nil, nil
	}
	return l, nil
}

// Require acquires ref or fails with models.ErrLockHeld, for callers
// that treat a foreign holder as an error.
func (s *Service) Require(ctx context.Context, ref models.ResourceRef, ownerID, sessionID string) (models.ResourceLock, error) {
	result, held, err := s.Acquire(ctx, ref, ownerID, sessionID)
	if err != nil {
		return models.ResourceLock{}, err
	}
	if result == models.LockHeldByOther {
		return held, models.ErrLockHeld
	}
	return held, nil
}

// Reap deletes every lock not refreshed within the TTL.
func (s *Service) Reap(ctx context.Context) (int64, error) {
	return s.repo.DeleteStale(ctx, s.clock.Now().Add(-s.ttl))
}

func validateHolder(ref models.ResourceRef, ownerID, sessionID string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(ownerID) == "" {
		return models.ValidationError{Field: "owner_id", Message: "owner id is required"}
	}
	if strings.TrimSpace(sessionID) == "" {
		return models.ValidationError{Field: "session_id", Message: "session id is required"}
	}
	return nil
}
