package cache

import (
	"context"
	"testing"

	"example.com/backstage/dairy/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCache(t *testing.T) {
	c, err := NewRedisCache(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	ctx := context.Background()
	var out []string
	assert.ErrorIs(t, c.Get(ctx, "k", &out), ErrDisabled)
	assert.ErrorIs(t, c.Set(ctx, "k", []string{"v"}, 0), ErrDisabled)
	assert.NoError(t, c.Close())

	var nilCache *RedisCache
	assert.False(t, nilCache.Enabled())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "identity:default", IdentityKey("default"))
	assert.Equal(t, "assignments:d1:2024-05-01:2024-05-02", AssignmentsKey("d1", "2024-05-01", "2024-05-02"))
	assert.Equal(t, "assignments:all::", AssignmentsKey("", "", ""))
}
