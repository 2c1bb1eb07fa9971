package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := New[string](time.Minute)

	id := r.Create("wizard")
	require.NotEmpty(t, id)

	v, ok := r.Get(id)
	assert.True(t, ok)
	assert.Equal(t, "wizard", v)
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Delete(id))
	assert.False(t, r.Delete(id))

	_, ok = r.Get(id)
	assert.False(t, ok)
}

func TestRegistry_IdleExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := New[int](10 * time.Minute)
	r.now = func() time.Time { return now }

	stale := r.Create(1)
	now = now.Add(5 * time.Minute)
	fresh := r.Create(2)

	now = now.Add(6 * time.Minute)
	assert.Equal(t, 1, r.Sweep())

	_, ok := r.Get(stale)
	assert.False(t, ok)
	v, ok := r.Get(fresh)
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestRegistry_GetRefreshesIdleTimer(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := New[int](10 * time.Minute)
	r.now = func() time.Time { return now }

	id := r.Create(7)
	for i := 0; i < 3; i++ {
		now = now.Add(8 * time.Minute)
		_, ok := r.Get(id)
		require.True(t, ok)
	}
	assert.Equal(t, 0, r.Sweep())
}

func TestRegistry_NoTTLNeverExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := New[int](0)
	r.now = func() time.Time { return now }

	id := r.Create(1)
	now = now.Add(1000 * time.Hour)
	_, ok := r.Get(id)
	assert.True(t, ok)
}
