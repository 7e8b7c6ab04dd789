package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/parley/runtime/dialog/session"
	"goa.design/parley/runtime/dialog/state"

	redisclient "goa.design/parley/features/session/redis/clients/redis"
)

func newTestStore(t *testing.T, opts StoreOptions) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	client, err := redisclient.New(redisclient.Options{Redis: rc})
	require.NoError(t, err)
	opts.Client = client
	store, err := NewStore(opts)
	require.NoError(t, err)
	return store, mr
}

func snapshot(dialogID string) session.Snapshot {
	return session.Snapshot{
		DialogID: dialogID,
		TenantID: "acme",
		Persona:  "analytical",
		FlowName: "spin_selling",
		Machine: state.Export{
			State:     "discovery",
			Phase:     "situation",
			Collected: map[string]any{"company_size": float64(40)},
			Turn:      3,
		},
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, StoreOptions{})
	ctx := context.Background()

	snap := snapshot("d-1")
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Load(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestStoreLoadMissing(t *testing.T) {
	store, _ := newTestStore(t, StoreOptions{})
	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestStoreSaveReplaces(t *testing.T) {
	store, _ := newTestStore(t, StoreOptions{})
	ctx := context.Background()

	snap := snapshot("d-1")
	require.NoError(t, store.Save(ctx, snap))
	snap.Machine.State = "pitch"
	snap.Machine.Turn = 4
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Load(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "pitch", got.Machine.State)
	assert.Equal(t, 4, got.Machine.Turn)
}

func TestStoreDelete(t *testing.T) {
	store, _ := newTestStore(t, StoreOptions{})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, snapshot("d-1")))
	require.NoError(t, store.Delete(ctx, "d-1"))
	_, err := store.Load(ctx, "d-1")
	assert.ErrorIs(t, err, session.ErrNotFound)

	// Deleting a missing snapshot is fine.
	require.NoError(t, store.Delete(ctx, "d-1"))
}

func TestStoreTTLExpiry(t *testing.T) {
	store, mr := newTestStore(t, StoreOptions{TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, snapshot("d-1")))
	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "d-1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestStoreKeyPrefix(t *testing.T) {
	store, mr := newTestStore(t, StoreOptions{KeyPrefix: "dlg:"})
	require.NoError(t, store.Save(context.Background(), snapshot("d-1")))
	assert.True(t, mr.Exists("dlg:d-1"))
}

func TestStoreValidation(t *testing.T) {
	_, err := NewStore(StoreOptions{})
	require.EqualError(t, err, "redis client is required")

	store, _ := newTestStore(t, StoreOptions{})
	require.EqualError(t, store.Save(context.Background(), session.Snapshot{}), "dialog ID is required")
	_, err = store.Load(context.Background(), "")
	require.EqualError(t, err, "dialog ID is required")
	require.EqualError(t, store.Delete(context.Background(), ""), "dialog ID is required")
}

func TestClientHealthPinger(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	client, err := redisclient.New(redisclient.Options{Redis: rc})
	require.NoError(t, err)

	assert.Equal(t, "session-redis", client.Name())
	assert.NoError(t, client.Ping(context.Background()))
}
