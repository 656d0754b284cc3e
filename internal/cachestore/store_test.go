package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, m.Delete(ctx, "k"))
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry should be treated as a miss")
}

func TestNewFromConfig_DefaultsToMemory(t *testing.T) {
	store, err := NewFromConfig("", "", "prefix")
	require.NoError(t, err)
	_, ok := store.(*Memory)
	assert.True(t, ok, "empty backend should fall back to the in-process store")

	store, err = NewFromConfig("redis", "", "prefix")
	require.NoError(t, err)
	_, ok = store.(*Memory)
	assert.True(t, ok, "redis backend with no URL should fall back to the in-process store")
}
