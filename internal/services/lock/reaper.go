package lock

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// reaperResource is the lock reapers hold so that only one instance
// sweeps at a time.
var reaperResource = models.ResourceRef{Type: "system", ID: "lock-reaper"}

// Reaper periodically deletes abandoned locks. Several reapers may run;
// each tick only the one holding the reaper lock sweeps.
type Reaper struct {
	name      string
	sessionID string
	interval  time.Duration

	service *Service
	logger  *logger.Logger
}

// NewReaper creates a reaper identified by name. An empty name defaults
// to the hostname.
func NewReaper(name string, interval time.Duration, service *Service, log *logger.Logger) *Reaper {
	if name == "" {
		name, _ = os.Hostname()
	}
	return &Reaper{
		name:      name,
		sessionID: uuid.NewString(),
		interval:  interval,
		service:   service,
		logger:    log,
	}
}

// Run sweeps every interval until ctx is cancelled, then releases the
// reaper lock.
func (r *Reaper) Run(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	r.logger.Info("reaper_started", fmt.Sprintf("Lock reaper %s started", r.name), requestID, map[string]interface{}{
		"reaper_name":      r.name,
		"interval_seconds": r.interval.Seconds(),
	})

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return r.shutdown(requestID)
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one sweep if this reaper holds, or can take, the reaper
// lock. It reports the number of locks deleted.
func (r *Reaper) Tick(ctx context.Context) int64 {
	requestID := logger.GenerateRequestID()

	result, holder, err := r.service.Acquire(ctx, reaperResource, r.name, r.sessionID)
	if err != nil {
		r.logger.Error("reaper_lock_failed", "Failed to acquire reaper lock", requestID, err, nil)
		return 0
	}
	if result == models.LockHeldByOther {
		r.logger.Debug("reaper_standby", "Another reaper is active", requestID, map[string]interface{}{
			"active_reaper": holder.OwnerID,
		})
		return 0
	}

	reaped, err := r.service.Reap(ctx)
	if err != nil {
		r.logger.Error("reap_failed", "Failed to delete stale locks", requestID, err, nil)
		return 0
	}
	if reaped > 0 {
		r.logger.Info("locks_reaped", fmt.Sprintf("Deleted %d stale locks", reaped), requestID, map[string]interface{}{
			"reaped": reaped,
		})
	}
	return reaped
}

func (r *Reaper) shutdown(requestID string) error {
	r.logger.Info("graceful_shutdown", "Starting graceful shutdown", requestID, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.service.Release(ctx, reaperResource, r.sessionID); err != nil {
		r.logger.Error("shutdown_failed", "Failed to release reaper lock", requestID, err, nil)
	}

	r.logger.Info("graceful_shutdown", "Graceful shutdown completed", requestID, nil)
	return nil
}
