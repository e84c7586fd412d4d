package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRepositoryWithClient(client), mr
}

func TestViewerCounterFloorsAtZero(t *testing.T) {
	repo, _ := newTestRedis(t)
	ctx := context.Background()

	n, err := repo.DecrViewers(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for i := 0; i < 3; i++ {
		_, err = repo.IncrViewers(ctx, "s1")
		require.NoError(t, err)
	}
	n, err = repo.GetViewers(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for i := 0; i < 5; i++ {
		n, err = repo.DecrViewers(ctx, "s1")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(0), n)
}

func TestSetAndClearViewers(t *testing.T) {
	repo, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.SetViewers(ctx, "s1", 12))
	got, err := mr.Get("stream:s1:viewers")
	require.NoError(t, err)
	assert.Equal(t, "12", got)

	require.NoError(t, repo.SetViewers(ctx, "s1", -4))
	n, err := repo.GetViewers(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, repo.ClearViewers(ctx, "s1"))
	assert.False(t, mr.Exists("stream:s1:viewers"))
}

func TestHitRateLimit(t *testing.T) {
	repo, mr := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, wait, err := repo.HitRateLimit(ctx, "10.0.0.1", 3, 10*time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
		assert.Zero(t, wait)
	}

	ok, wait, err := repo.HitRateLimit(ctx, "10.0.0.1", 3, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, 10*time.Second)

	// other addresses have their own window
	ok, _, err = repo.HitRateLimit(ctx, "10.0.0.2", 3, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(11 * time.Second)
	ok, _, err = repo.HitRateLimit(ctx, "10.0.0.1", 3, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPublishReachesSubscriber(t *testing.T) {
	repo, _ := newTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := repo.PSubscribe(ctx, "stream.*")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Publish(ctx, "stream.s1", []byte(`{"event":"x"}`)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stream.s1", msg.Channel)
	assert.Equal(t, `{"event":"x"}`, msg.Payload)
}
