package relmeta

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "snapshots")
	c, err := NewFileCache(dir)
	require.NoError(t, err)
	require.Equal(t, dir, c.Dir())

	_, err = c.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "sqlite:a:main", []byte("snap"), 0))
	require.NoError(t, c.Set(ctx, "sqlite:b:main", []byte("b"), 0))
	require.NoError(t, c.Set(ctx, "postgres:c:public", []byte("c"), 0))
	require.Equal(t, 3, c.Len())

	// A second cache over the same directory sees the entries.
	reopened, err := NewFileCache(dir)
	require.NoError(t, err)
	v, err := reopened.Get(ctx, "sqlite:a:main")
	require.NoError(t, err)
	require.Equal(t, []byte("snap"), v)

	require.NoError(t, c.Set(ctx, "sqlite:a:main", []byte("snap2"), 0))
	v, err = reopened.Get(ctx, "sqlite:a:main")
	require.NoError(t, err)
	require.Equal(t, []byte("snap2"), v)

	require.NoError(t, c.DeletePrefix(ctx, "sqlite:"))
	require.Equal(t, 1, c.Len())
	_, err = c.Get(ctx, "sqlite:b:main")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Delete(ctx, "postgres:c:public"))
	require.NoError(t, c.Delete(ctx, "postgres:c:public"))
	require.Equal(t, 0, c.Len())

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, c.Clear(ctx))
	require.Equal(t, 0, c.Len())
}

func TestFileCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := NewFileCache(t.TempDir())
	require.NoError(t, err)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, err = c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, ErrCacheMiss)
	require.Equal(t, 0, c.Len())
}

func TestFileCache_Corrupt(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(c.path("k"), []byte{0xc1}, 0o600))

	_, err = c.Get(ctx, "k")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.DeletePrefix(ctx, "other"))
	require.Equal(t, 0, c.Len())
}
