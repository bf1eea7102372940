package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casebook/internal/blob"
	"casebook/internal/store"
)

func TestPeerBumpMakesOtherCachesStale(t *testing.T) {
	peer := NewBlobPeer(blob.NewMemoryStore())
	loader := &countingLoader{}
	loader.set("a")
	writer := New(loader.load, time.Hour, WithPeer(peer))
	reader := New(loader.load, time.Hour, WithPeer(peer))

	_, err := reader.Read(context.Background())
	require.NoError(t, err)
	_, err = reader.Read(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, loader.calls.Load())

	loader.set("a", "b")
	writer.Invalidate(context.Background())

	got, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, titles(got))
	assert.EqualValues(t, 2, loader.calls.Load())

	_, err = reader.Read(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, loader.calls.Load())
}

type brokenPeer struct{}

func (brokenPeer) Version(context.Context) (string, error) { return "", errors.New("redis down") }
func (brokenPeer) Bump(context.Context) error { return errors.New("redis down") }

func TestUnreachablePeerResyncsEveryRead(t *testing.T) {
	logger, hook := test.NewNullLogger()
	loader := &countingLoader{}
	loader.set("a")
	c := New(loader.load, time.Hour, WithPeer(brokenPeer{}), WithLogger(logger))

	for range 3 {
		got, err := c.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, titles(got))
	}
	assert.EqualValues(t, 3, loader.calls.Load())

	c.Invalidate(context.Background())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "publish listing invalidation", hook.LastEntry().Message)
}

func TestRedisPeerVersion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	peer := NewRedisPeer(client)
	ctx := context.Background()

	v, err := peer.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", v)

	require.NoError(t, peer.Bump(ctx))
	require.NoError(t, peer.Bump(ctx))
	v, err = peer.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestCancelledReaderDoesNotFailSharedResync(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	c := New(func(ctx context.Context) ([]store.Summary, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		select {
		case <-release:
			return []store.Summary{{Title: "a"}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, time.Hour)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Read(leaderCtx)
		leaderErr <- err
	}()
	<-entered

	type result struct {
		items []store.Summary
		err   error
	}
	follower := make(chan result, 1)
	go func() {
		items, err := c.Read(context.Background())
		follower <- result{items, err}
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, []string{"a"}, titles(got.items))
	assert.EqualValues(t, 1, calls.Load())
}
