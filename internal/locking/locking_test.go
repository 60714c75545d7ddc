package locking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	release, err := locker.Acquire(ctx, "CST-2026-0001", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "CST-2026-0001", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	other, err := locker.Acquire(ctx, "CST-2026-0002", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := locker.Acquire(ctx, "CST-2026-0001", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLocalLocker_LeaseExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	locker := NewLocalLocker()
	locker.clock = func() time.Time { return now }

	stale, err := locker.Acquire(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	now = now.Add(6 * time.Second)
	fresh, err := locker.Acquire(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	// The expired holder must not drop the new lease.
	require.NoError(t, stale(ctx))
	_, err = locker.Acquire(ctx, "k", 5*time.Second)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, fresh(ctx))
}
