package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/matzehuels/phpup/pkg/checksum"
	"github.com/matzehuels/phpup/pkg/observability"
)

const (
	blobExt = ".blob"
	metaExt = ".json"
	lockExt = ".lock"

	lockRetryInterval = 100 * time.Millisecond
)

// Entry describes one cached artifact. Path is the only handle callers use
// to read the content.
type Entry struct {
	Key       string       `json:"key"`
	Path      string       `json:"-"`
	Checksums checksum.Set `json:"checksums"`
	Source    string       `json:"source,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	SizeBytes int64        `json:"size_bytes"`
}

// Expired reports whether the entry is past its expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is the on-disk artifact cache.
//
// Each entry is a content blob plus a JSON sidecar, both written through a
// temporary file and a rename. The sidecar is written last, so an entry only
// becomes visible once its content is complete. Mutations of one key are
// serialized across processes with an advisory file lock.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore opens (and creates) a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) blobPath(key string) string { return shardedPath(s.dir, key, blobExt) }
func (s *Store) metaPath(key string) string { return shardedPath(s.dir, key, metaExt) }
func (s *Store) lockPath(key string) string { return shardedPath(s.dir, key, lockExt) }

func (s *Store) lock(ctx context.Context, key string, shared bool) (func() error, error) {
	path := s.lockPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(path)
	var (
		locked bool
		err    error
	)
	if shared {
		locked, err = fl.TryRLockContext(ctx, lockRetryInterval)
	} else {
		locked, err = fl.TryLockContext(ctx, lockRetryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocked, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %v", ErrLocked, ctx.Err())
	}
	return fl.Unlock, nil
}

// Lookup returns the live entry for key. Expired or incomplete entries are misses.
func (s *Store) Lookup(ctx context.Context, key string) (*Entry, bool, error) {
	unlock, err := s.lock(ctx, key, true)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	entry, ok, err := s.readEntry(key)
	switch {
	case err != nil:
		return nil, false, err
	case !ok:
		observability.Cache().OnCacheMiss(ctx, "artifact")
		return nil, false, nil
	}
	observability.Cache().OnCacheHit(ctx, "artifact")
	return entry, true, nil
}

func (s *Store) readEntry(key string) (*Entry, bool, error) {
	data, err := os.ReadFile(s.metaPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key {
		return nil, false, nil
	}
	if entry.Expired(s.now()) {
		return nil, false, nil
	}
	entry.Path = s.blobPath(key)
	info, err := os.Stat(entry.Path)
	if err != nil || info.Size() != entry.SizeBytes {
		return nil, false, nil
	}
	return &entry, true, nil
}

// CopyTo copies the content of a live entry to dest through a temporary
// sibling of dest. It returns ErrCacheMiss when there is no live entry.
func (s *Store) CopyTo(ctx context.Context, key, dest string) (*Entry, error) {
	unlock, err := s.lock(ctx, key, true)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entry, ok, err := s.readEntry(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCacheMiss
	}
	src, err := os.Open(entry.Path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	err = writeAtomicFrom(dest, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PutOptions carries the metadata recorded with a new entry.
type PutOptions struct {
	Checksums checksum.Set
	Source    string
	TTL       time.Duration
}

// Put copies the file at src into the store under key, replacing any
// existing entry. Checksums missing from opts are computed from the content.
func (s *Store) Put(ctx context.Context, key, src string, opts PutOptions) (*Entry, error) {
	unlock, err := s.lock(ctx, key, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	hasher, err := checksum.NewHasher(checksum.SHA256)
	if err != nil {
		return nil, err
	}
	var size int64
	err = writeAtomicFrom(s.blobPath(key), 0o644, func(w io.Writer) error {
		n, err := io.Copy(io.MultiWriter(w, hasher), in)
		size = n
		return err
	})
	if err != nil {
		return nil, err
	}
	sums := hasher.Sum()

	now := s.now()
	entry := &Entry{
		Key:       key,
		Path:      s.blobPath(key),
		Checksums: opts.Checksums.Merge(sums),
		Source:    opts.Source,
		CreatedAt: now,
		SizeBytes: size,
	}
	if opts.TTL > 0 {
		entry.ExpiresAt = now.Add(opts.TTL)
	}
	meta, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(s.metaPath(key), meta, 0o644); err != nil {
		return nil, err
	}
	observability.Cache().OnCacheSet(ctx, "artifact", size)
	return entry, nil
}

// Evict removes the entry for key. Evicting a missing key is not an error.
func (s *Store) Evict(ctx context.Context, key string) error {
	unlock, err := s.lock(ctx, key, false)
	if err != nil {
		return err
	}
	defer unlock()
	return s.removeFiles(key)
}

func (s *Store) removeFiles(key string) error {
	// Sidecar first so the entry disappears before its content does.
	for _, p := range []string{s.metaPath(key), s.blobPath(key)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Entries lists every readable entry, expired ones included, sorted by key.
func (s *Store) Entries() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, metaExt) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var e Entry
		if json.Unmarshal(data, &e) != nil || e.Key == "" {
			return nil
		}
		e.Path = s.blobPath(e.Key)
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Prune evicts expired entries and returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int, error) {
	entries, err := s.Entries()
	if err != nil {
		return 0, err
	}
	now := s.now()
	removed := 0
	for _, e := range entries {
		if !e.Expired(now) {
			continue
		}
		if err := s.Evict(ctx, e.Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return err
	}
	return os.MkdirAll(s.dir, 0o755)
}

// Size returns the total content size of all entries.
func (s *Store) Size() (int64, error) {
	entries, err := s.Entries()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.SizeBytes
	}
	return total, nil
}
