package presence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"tableside/internal/clock"
	"tableside/internal/logger"
	"tableside/internal/models"
)

const keyPrefix = "presence"

// Tracker records which sessions are looking at a resource. Each resource
// keeps a sorted set of session ids scored by last heartbeat (unix ms) and
// a hash of session id to owner id. Both keys expire one TTL after the
// latest heartbeat so an abandoned resource leaves nothing behind.
type Tracker struct {
	rdb    *goredis.Client
	ttl    time.Duration
	clock  clock.Clock
	logger *logger.Logger
}

func NewTracker(rdb *goredis.Client, ttl time.Duration, c clock.Clock, log *logger.Logger) *Tracker {
	if c == nil {
		c = clock.NewSystem()
	}
	return &Tracker{rdb: rdb, ttl: ttl, clock: c, logger: log}
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func sessionsKey(ref models.ResourceRef) string {
	return strings.Join([]string{keyPrefix, ref.Type, ref.ID}, ":")
}

func ownersKey(ref models.ResourceRef) string {
	return sessionsKey(ref) + ":owners"
}

// Heartbeat marks sessionID as present on ref. ownerID may be empty for
// anonymous diners.
func (t *Tracker) Heartbeat(ctx context.Context, ref models.ResourceRef, sessionID, ownerID string) error {
	if err := validate(ref, sessionID); err != nil {
		return err
	}

	now := t.clock.Now()
	_, err := t.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, sessionsKey(ref), goredis.Z{Score: float64(now.UnixMilli()), Member: sessionID})
		pipe.Expire(ctx, sessionsKey(ref), t.ttl)
		if ownerID != "" {
			pipe.HSet(ctx, ownersKey(ref), sessionID, ownerID)
			pipe.Expire(ctx, ownersKey(ref), t.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// Leave removes sessionID from ref. Leaving a resource the session is not
// on is a no-op.
func (t *Tracker) Leave(ctx context.Context, ref models.ResourceRef, sessionID string) error {
	if err := validate(ref, sessionID); err != nil {
		return err
	}

	_, err := t.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRem(ctx, sessionsKey(ref), sessionID)
		pipe.HDel(ctx, ownersKey(ref), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

// Present lists the sessions on ref whose last heartbeat is within the
// TTL, most recent first. Stale sessions are pruned on the way.
func (t *Tracker) Present(ctx context.Context, ref models.ResourceRef) ([]models.Presence, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	now := t.clock.Now()
	cutoff := now.Add(-t.ttl)
	if err := t.prune(ctx, ref, cutoff); err != nil {
		return nil, err
	}

	entries, err := t.rdb.ZRevRangeWithScores(ctx, sessionsKey(ref), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	if len(entries) == 0 {
		return []models.Presence{}, nil
	}

	sessions := make([]string, len(entries))
	for i, z := range entries {
		sessions[i] = z.Member.(string)
	}
	owners, err := t.rdb.HMGet(ctx, ownersKey(ref), sessions...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence owners: %w", err)
	}

	present := make([]models.Presence, 0, len(entries))
	for i, z := range entries {
		p := models.Presence{
			SessionID: sessions[i],
			LastSeen:  time.UnixMilli(int64(z.Score)).UTC(),
		}
		if owner, ok := owners[i].(string); ok {
			p.OwnerID = owner
		}
		if p.IsStale(now, t.ttl) {
			continue
		}
		present = append(present, p)
	}
	return present, nil
}

// prune drops sessions last seen at or before cutoff together with their
// owner entries.
func (t *Tracker) prune(ctx context.Context, ref models.ResourceRef, cutoff time.Time) error {
	upper := strconv.FormatInt(cutoff.UnixMilli(), 10)
	stale, err := t.rdb.ZRangeByScore(ctx, sessionsKey(ref), &goredis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return fmt.Errorf("failed to find stale presence: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	_, err = t.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, sessionsKey(ref), "-inf", upper)
		pipe.HDel(ctx, ownersKey(ref), stale...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to prune presence: %w", err)
	}
	t.logger.Debug("presence_pruned", fmt.Sprintf("Pruned %d stale sessions", len(stale)), logger.RequestID(ctx), map[string]interface{}{
		"resource_type": ref.Type,
		"resource_id":   ref.ID,
	})
	return nil
}

// Ping reports whether Redis answers.
func (t *Tracker) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

func validate(ref models.ResourceRef, sessionID string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(sessionID) == "" {
		return models.ValidationError{Field: "session_id", Message: "session id is required"}
	}
	return nil
}
