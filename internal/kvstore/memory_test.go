package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemory_ExpiresLazilyOnRead(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory().WithClock(clock.now)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "otp:42", "913204", 5*time.Minute))

	v, ok, err := m.Get(ctx, "otp:42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "913204", v)

	clock.advance(5 * time.Minute)
	assert.Len(t, m.entries, 1, "nothing sweeps before a read")

	_, ok, err = m.Get(ctx, "otp:42")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, m.entries)
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := NewMemory().WithClock(clock.now)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	clock.advance(24 * 365 * time.Hour)

	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)
}

func TestMemory_SetNXHonoursLiveKeysOnly(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := NewMemory().WithClock(clock.now)
	ctx := context.Background()

	ok, err := m.SetNX(ctx, "lease", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = m.SetNX(ctx, "lease", "b", time.Minute)
	assert.False(t, ok, "held lease must not be taken")

	clock.advance(time.Minute)
	ok, _ = m.SetNX(ctx, "lease", "b", time.Minute)
	assert.True(t, ok, "expired lease can be taken")

	v, _, _ := m.Get(ctx, "lease")
	assert.Equal(t, "b", v)
}

func TestMemory_CompareAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "lease", "owner-1", time.Minute))

	ok, err := m.CompareAndDelete(ctx, "lease", "owner-2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.CompareAndDelete(ctx, "lease", "owner-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, _ := m.Get(ctx, "lease")
	assert.False(t, found)
}
