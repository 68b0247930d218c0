package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"tableside/internal/clock"
	"tableside/internal/logger"
	"tableside/internal/models"
	"tableside/internal/testutil"
)

func TestPostgres_LockLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	c := clock.NewManual(time.Now())
	svc := NewService(NewPostgresRepository(db), testTTL, c, logger.Discard())

	result, _, err := svc.Acquire(ctx, menuRef, "emp-1", "tab-1")
	require.NoError(t, err)
	assert.Equal(t, models.LockAcquired, result)

	result, held, err := svc.Acquire(ctx, menuRef, "emp-2", "tab-2")
	require.NoError(t, err)
	assert.Equal(t, models.LockHeldByOther, result)
	assert.Equal(t, "emp-1", held.OwnerID)

	c.Advance(testTTL + time.Second)
	result, _, err = svc.Acquire(ctx, menuRef, "emp-2", "tab-2")
	require.NoError(t, err)
	assert.Equal(t, models.LockAcquired, result)

	require.NoError(t, svc.Release(ctx, menuRef, "tab-1"))
	current, err := svc.GetLock(ctx, menuRef)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "tab-2", current.SessionID)

	c.Advance(testTTL + time.Second)
	reaped, err := svc.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reaped)
}

func TestPostgres_ConcurrentAcquire(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	svc := NewService(NewPostgresRepository(db), testTTL, nil, logger.Discard())

	var g errgroup.Group
	results := make([]models.LockResult, 10)
	for i := range results {
		g.Go(func() error {
			result, _, err := svc.Acquire(ctx, menuRef, "emp-1", fmt.Sprintf("tab-%d", i))
			results[i] = result
			return err
		})
	}
	require.NoError(t, g.Wait())

	acquired := 0
	for _, r := range results {
		if r == models.LockAcquired {
			acquired++
		}
	}
	assert.Equal(t, 1, acquired)
}
