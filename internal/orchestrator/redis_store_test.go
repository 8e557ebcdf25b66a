package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(client, "test", ttl), mr
}

func TestRedisSessionStore_roundtrip(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	sess := &Session{
		ID:           "s1",
		UserID:       "u1",
		ServerID:     3,
		StreamName:   "stream_u1_1",
		Status:       StatusActive,
		StartedAt:    testEpoch,
		Counted:      true,
		Destinations: []Destination{{PlatformID: "yt", EntryID: "stream_u1_1_yt", Provisioned: true, Status: DestinationConnected}},
	}
	require.NoError(t, store.Put(ctx, sess))
	assert.True(t, mr.Exists("test:session:s1"))

	got, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sess.StreamName, got.StreamName)
	assert.True(t, got.Counted)
	assert.True(t, got.StartedAt.Equal(testEpoch))
	assert.Equal(t, []string{"stream_u1_1_yt"}, got.ProvisionedEntryIDs())

	require.NoError(t, store.Remove(ctx, "s1"))
	_, ok, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
	members, _ := mr.Members("test:sessions")
	assert.Empty(t, members)
}

func TestRedisSessionStore_List_prunes_expired(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Session{ID: "b", Status: StatusActive}))
	require.NoError(t, store.Put(ctx, &Session{ID: "a", Status: StatusActive}))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, SessionID("a"), list[0].ID)

	mr.FastForward(2 * time.Minute)
	list, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	members, _ := mr.Members("test:sessions")
	assert.Empty(t, members)
}

func TestRedisSessionStore_unavailable(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)
	mr.Close()

	err := store.Put(context.Background(), &Session{ID: "s1"})
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
	_, _, err = store.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	_ = client.Close()

	_, err = ConnectRedis(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestService_with_redis_registry(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	env := newTestEnv(t, nil, withStore(store))
	env.gateway.PutServer(server(1, 0, 5, 10))
	ctx := context.Background()

	res, err := env.svc.Start(ctx, StartSpec{
		UserID:       "u1",
		Destinations: []DestinationSpec{destination("yt", "rtmp://a.rtmp.youtube.com/live2")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, env.svc.ActiveSessionCount(ctx))

	stopped, err := env.svc.Stop(ctx, res.SessionID)
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, 0, env.active(t, 1))
	assert.Len(t, env.client.endpoints("DELETE"), 1)
}
