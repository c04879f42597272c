package relmeta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const fileCacheExt = ".snap"

// FileCache is a Cache keeping one file per key in a directory, so stored
// snapshots are reused by later processes. Writes replace files atomically.
type FileCache struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

type fileEntry struct {
	Key     string `msgpack:"key"`
	Value   []byte `msgpack:"value"`
	Expires int64  `msgpack:"expires"` // Unix nanoseconds, 0 never expires.
}

// NewFileCache returns a FileCache in dir, creating the directory if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("relmeta: creating cache directory: %w", err)
	}
	return &FileCache{dir: dir, now: time.Now}, nil
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string { return c.dir }

func (c *FileCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+fileCacheExt)
}

func (c *FileCache) read(path string) (*fileEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	e := &fileEntry{}
	if err := msgpack.Unmarshal(b, e); err != nil {
		return nil, fmt.Errorf("relmeta: decoding cache entry %s: %w", filepath.Base(path), err)
	}
	return e, nil
}

func (c *FileCache) expired(e *fileEntry) bool {
	return e.Expires != 0 && c.now().UnixNano() >= e.Expires
}

// Get implements Cache.
func (c *FileCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := c.path(key)
	e, err := c.read(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, err
	case e.Key != key:
		return nil, ErrCacheMiss
	case c.expired(e):
		if err := remove(path); err != nil {
			return nil, err
		}
		return nil, ErrCacheMiss
	}
	return e.Value, nil
}

// Set implements Cache.
func (c *FileCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := fileEntry{Key: key, Value: value}
	if ttl > 0 {
		e.Expires = c.now().Add(ttl).UnixNano()
	}
	b, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("relmeta: encoding cache entry: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("relmeta: writing cache entry: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("relmeta: writing cache entry: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("relmeta: writing cache entry: %w", err)
	}
	if err := os.Rename(f.Name(), c.path(key)); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("relmeta: writing cache entry: %w", err)
	}
	return nil
}

// Delete implements Cache.
func (c *FileCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return remove(c.path(key))
}

// DeletePrefix implements Cache. Entries that cannot be decoded are
// removed as well.
func (c *FileCache) DeletePrefix(_ context.Context, prefix string) error {
	return c.removeIf(func(e *fileEntry) bool { return e == nil || strings.HasPrefix(e.Key, prefix) })
}

// Clear implements Cache.
func (c *FileCache) Clear(_ context.Context) error {
	return c.removeIf(func(*fileEntry) bool { return true })
}

// Len returns the number of stored entries, expired ones included.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths, _ := filepath.Glob(filepath.Join(c.dir, "*"+fileCacheExt))
	return len(paths)
}

func (c *FileCache) removeIf(match func(*fileEntry) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths, err := filepath.Glob(filepath.Join(c.dir, "*"+fileCacheExt))
	if err != nil {
		return fmt.Errorf("relmeta: listing cache entries: %w", err)
	}
	var errs []error
	for _, path := range paths {
		e, err := c.read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			e = nil
		}
		if match(e) {
			errs = append(errs, remove(path))
		}
	}
	return NewAggregateError(errs...)
}

func remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("relmeta: removing cache entry: %w", err)
	}
	return nil
}

var _ Cache = (*FileCache)(nil)
