package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tableside/internal/logger"
)

func TestReaper_OnlyOneSweeps(t *testing.T) {
	ctx := context.Background()
	svc, repo, c := newTestService(t)

	_, _, err := svc.Acquire(ctx, menuRef, "emp-1", "tab-1")
	require.NoError(t, err)
	c.Advance(testTTL + time.Second)

	first := NewReaper("reaper-a", time.Second, svc, logger.Discard())
	second := NewReaper("reaper-b", time.Second, svc, logger.Discard())

	assert.Equal(t, int64(1), first.Tick(ctx))
	assert.NotContains(t, repo.locks, menuRef)

	_, _, err = svc.Acquire(ctx, menuRef, "emp-1", "tab-1")
	require.NoError(t, err)
	c.Advance(testTTL + time.Second)

	// reaper-a went quiet for a full TTL, so reaper-b takes over.
	assert.Equal(t, int64(1), second.Tick(ctx))
	assert.Equal(t, "reaper-b", repo.locks[reaperResource].OwnerID)

	assert.Equal(t, int64(0), first.Tick(ctx), "standby reaper must not sweep")
}

func TestReaper_RunReleasesOnShutdown(t *testing.T) {
	svc, repo, _ := newTestService(t)
	r := NewReaper("reaper-a", time.Hour, svc, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		_, ok := repo.locks[reaperResource]
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}

	held, err := svc.GetLock(context.Background(), reaperResource)
	require.NoError(t, err)
	assert.Nil(t, held)
	assert.NotContains(t, repo.locks, reaperResource)
}
