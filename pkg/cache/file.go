package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/matzehuels/phpup/pkg/observability"
)

// metadataKind labels FileCache events in the cache hooks.
const metadataKind = "metadata"

// FileCache keeps small JSON values as files below a directory, one file
// per key. It is safe for concurrent use by several processes.
type FileCache struct {
	dir string
}

// NewFileCache opens a file cache in dir, creating it if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string { return c.dir }

type fileEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Get returns the value for key. Expired and unreadable entries are removed
// and reported as misses.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		observability.Cache().OnCacheMiss(ctx, metadataKind)
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}

	var e fileEntry
	if json.Unmarshal(raw, &e) != nil || (!e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)) {
		_ = os.Remove(path)
		observability.Cache().OnCacheMiss(ctx, metadataKind)
		return nil, false, nil
	}
	observability.Cache().OnCacheHit(ctx, metadataKind)
	return e.Data, true, nil
}

// Set stores data under key.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	e := fileEntry{Data: data}
	if ttl > 0 {
		e.ExpiresAt = time.Now().Add(ttl)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := writeAtomic(c.path(key), raw, 0o644); err != nil {
		return err
	}
	observability.Cache().OnCacheSet(ctx, metadataKind, int64(len(data)))
	return nil
}

// Delete removes key.
func (c *FileCache) Delete(_ context.Context, key string) error {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Close is a no-op.
func (c *FileCache) Close() error { return nil }

func (c *FileCache) path(key string) string {
	return shardedPath(c.dir, key, ".json")
}

var _ Cache = (*FileCache)(nil)
