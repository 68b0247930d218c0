package lock

import (
	"context"
	"sync"
	"time"

	"tableside/internal/models"
)

type fakeTxKey struct{}

// fakeRepo keeps locks in a map; WithTx serializes callers.
type fakeRepo struct {
	mu    sync.Mutex
	locks map[models.ResourceRef]models.ResourceLock
	// onInsert runs before Insert checks for an existing row.
	onInsert func(r *fakeRepo)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{locks: map[models.ResourceRef]models.ResourceLock{}}
}

func refOf(l models.ResourceLock) models.ResourceRef {
	return models.ResourceRef{Type: l.ResourceType, ID: l.ResourceID}
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.WithValue(ctx, fakeTxKey{}, true))
}

// lock takes the mutex for calls made outside WithTx.
func (r *fakeRepo) lock(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *fakeRepo) Get(ctx context.Context, ref models.ResourceRef) (*models.ResourceLock, error) {
	defer r.lock(ctx)()
	l, ok := r.locks[ref]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *fakeRepo) GetForUpdate(ctx context.Context, ref models.ResourceRef) (*models.ResourceLock, error) {
	return r.Get(ctx, ref)
}

func (r *fakeRepo) Insert(ctx context.Context, l models.ResourceLock) error {
	defer r.lock(ctx)()
	if hook := r.onInsert; hook != nil {
		r.onInsert = nil
		hook(r)
	}
	if _, ok := r.locks[refOf(l)]; ok {
		return models.ErrPersistenceConflict
	}
	r.locks[refOf(l)] = l
	return nil
}

func (r *fakeRepo) Refresh(ctx context.Context, ref models.ResourceRef, sessionID string, at time.Time) (bool, error) {
	defer r.lock(ctx)()
	l, ok := r.locks[ref]
	if !ok || l.SessionID != sessionID {
		return false, nil
	}
	l.RefreshedAt = at
	r.locks[ref] = l
	return true, nil
}

func (r *fakeRepo) TakeOver(ctx context.Context, l models.ResourceLock, cutoff time.Time) (bool, error) {
	defer r.lock(ctx)()
	existing, ok := r.locks[refOf(l)]
	if !ok || existing.RefreshedAt.After(cutoff) {
		return false, nil
	}
	r.locks[refOf(l)] = l
	return true, nil
}

func (r *fakeRepo) Delete(ctx context.Context, ref models.ResourceRef, sessionID string) (bool, error) {
	defer r.lock(ctx)()
	l, ok := r.locks[ref]
	if !ok || l.SessionID != sessionID {
		return false, nil
	}
	delete(r.locks, ref)
	return true, nil
}

func (r *fakeRepo) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	defer r.lock(ctx)()
	var n int64
	for ref, l := range r.locks {
		if !l.RefreshedAt.After(cutoff) {
			delete(r.locks, ref)
			n++
		}
	}
	return n, nil
}
