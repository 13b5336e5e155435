package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache_LocalWithoutRedis(t *testing.T) {
	c, err := NewCache(CacheConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	_, err = c.Get(ctx, "missing")
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestNewPubSub_Local(t *testing.T) {
	ps, err := NewPubSub(CacheConfig{LocalPubSubBuf: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "quest:a")
	require.NoError(t, err)
	defer cancel()
	require.NoError(t, ps.Publish(ctx, "quest:a", "hello"))

	select {
	case msg := <-ch:
		assert.Equal(t, "quest:a", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
}
