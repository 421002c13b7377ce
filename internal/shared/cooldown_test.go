package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCooldown(t *testing.T) (*Cooldown, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCooldown(client), mr
}

func TestCooldownStartAndRemaining(t *testing.T) {
	cd, mr := newTestCooldown(t)
	ctx := context.Background()
	key := ResendCooldownKey("inv-1")

	remaining, err := cd.Remaining(ctx, key)
	require.NoError(t, err)
	require.Zero(t, remaining)

	require.NoError(t, cd.Start(ctx, key, 60*time.Second))
	remaining, err = cd.Remaining(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 60*time.Second, remaining)

	// Re-arming does not extend the original expiry.
	mr.FastForward(20 * time.Second)
	require.NoError(t, cd.Start(ctx, key, 60*time.Second))
	remaining, err = cd.Remaining(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 40*time.Second, remaining)

	mr.FastForward(40 * time.Second)
	remaining, err = cd.Remaining(ctx, key)
	require.NoError(t, err)
	require.Zero(t, remaining)
}

func TestCooldownClear(t *testing.T) {
	cd, _ := newTestCooldown(t)
	ctx := context.Background()
	key := ResendCooldownKey("inv-2")

	require.NoError(t, cd.Start(ctx, key, time.Minute))
	require.NoError(t, cd.Clear(ctx, key))
	remaining, err := cd.Remaining(ctx, key)
	require.NoError(t, err)
	require.Zero(t, remaining)
}

func TestCooldownNilSafe(t *testing.T) {
	var cd *Cooldown
	ctx := context.Background()
	require.NoError(t, cd.Start(ctx, "k", time.Minute))
	remaining, err := cd.Remaining(ctx, "k")
	require.NoError(t, err)
	require.Zero(t, remaining)
}
