package relmeta

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "sqlite:a:main", []byte("snap"), 0))
	v, err := c.Get(ctx, "sqlite:a:main")
	require.NoError(t, err)
	require.Equal(t, []byte("snap"), v)

	// Returned values are copies.
	v[0] = 'X'
	v, err = c.Get(ctx, "sqlite:a:main")
	require.NoError(t, err)
	require.Equal(t, []byte("snap"), v)

	require.NoError(t, c.Set(ctx, "sqlite:b:main", []byte("b"), 0))
	require.NoError(t, c.Set(ctx, "postgres:c:public", []byte("c"), 0))
	require.NoError(t, c.DeletePrefix(ctx, "sqlite:"))
	require.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete(ctx, "postgres:c:public"))
	require.Equal(t, 0, c.Len())

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, c.Clear(ctx))
	require.Equal(t, 0, c.Len())
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, ErrCacheMiss)
	require.Equal(t, 0, c.Len())
}

func TestMemoryCache_ExpiredReplaced(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(ctx, "k", []byte("old"), time.Minute))

	// A fresh value is stored between the expiry check and the delete.
	now = now.Add(time.Minute)
	replaced := false
	c.now = func() time.Time {
		if !replaced {
			replaced = true
			require.NoError(t, c.Set(ctx, "k", []byte("new"), 0))
		}
		return now
	}
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
	require.Equal(t, 1, c.Len())
}

func TestSnapshotKey(t *testing.T) {
	k := SnapshotKey{Dialect: "postgres", Source: "db1", Schemas: []string{"public", "audit"}}
	require.Equal(t, "postgres:db1:public,audit", k.String())
	require.Equal(t, "sqlite::", SnapshotKey{Dialect: "sqlite"}.String())
}
