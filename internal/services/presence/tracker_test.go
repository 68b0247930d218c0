package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tableside/internal/clock"
	"tableside/internal/logger"
	"tableside/internal/models"
	"tableside/internal/testutil"
)

const testTTL = 45 * time.Second

var menuRef = models.ResourceRef{Type: "menu", ID: "dinner"}

func newTestTracker(t *testing.T) (*Tracker, *clock.Manual) {
	t.Helper()
	rdb := testutil.NewTestRedis(t)
	c := clock.NewManual(time.Now())
	return NewTracker(rdb, testTTL, c, logger.Discard()), c
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "presence:menu:dinner", sessionsKey(menuRef))
	assert.Equal(t, "presence:menu:dinner:owners", ownersKey(menuRef))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, validate(models.ResourceRef{ID: "x"}, "s-1"), models.ErrValidation)
	assert.ErrorIs(t, validate(menuRef, "  "), models.ErrValidation)
	assert.NoError(t, validate(menuRef, "s-1"))
}

func TestTracker_HeartbeatAndPresent(t *testing.T) {
	tracker, c := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, menuRef, "tab-1", "emp-1"))
	c.Advance(time.Second)
	require.NoError(t, tracker.Heartbeat(ctx, menuRef, "browser-2", ""))

	present, err := tracker.Present(ctx, menuRef)
	require.NoError(t, err)
	require.Len(t, present, 2)
	assert.Equal(t, "browser-2", present[0].SessionID)
	assert.Empty(t, present[0].OwnerID)
	assert.Equal(t, "tab-1", present[1].SessionID)
	assert.Equal(t, "emp-1", present[1].OwnerID)

	other, err := tracker.Present(ctx, models.ResourceRef{Type: "menu", ID: "lunch"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestTracker_StaleSessionsArePruned(t *testing.T) {
	tracker, c := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, menuRef, "tab-1", "emp-1"))
	c.Advance(30 * time.Second)
	require.NoError(t, tracker.Heartbeat(ctx, menuRef, "tab-2", "emp-2"))
	c.Advance(20 * time.Second)

	present, err := tracker.Present(ctx, menuRef)
	require.NoError(t, err)
	require.Len(t, present, 1)
	assert.Equal(t, "tab-2", present[0].SessionID)

	owners, err := tracker.rdb.HGetAll(ctx, ownersKey(menuRef)).Result()
	require.NoError(t, err)
	assert.NotContains(t, owners, "tab-1")
}

func TestTracker_Leave(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, menuRef, "tab-1", "emp-1"))
	require.NoError(t, tracker.Leave(ctx, menuRef, "tab-1"))
	require.NoError(t, tracker.Leave(ctx, menuRef, "tab-1"))

	present, err := tracker.Present(ctx, menuRef)
	require.NoError(t, err)
	assert.Empty(t, present)
}
