package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/phpup/pkg/checksum"
)

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.tar.gz")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return s
}

func TestStorePutLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	src := writeSource(t, "hello\n")

	if _, ok, err := s.Lookup(ctx, "php-source:8.2.10"); ok || err != nil {
		t.Fatalf("Lookup() on empty store = %v, %v", ok, err)
	}

	put, err := s.Put(ctx, "php-source:8.2.10", src, PutOptions{
		Checksums: checksum.Set{checksum.MD5: "b1946ac92492d2347c6235b4d2611184"},
		Source:    "https://www.php.net/distributions/php-8.2.10.tar.gz",
		TTL:       time.Hour,
	})
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if put.SizeBytes != 6 {
		t.Errorf("SizeBytes = %d, want 6", put.SizeBytes)
	}
	if put.Checksums[checksum.SHA256] != "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03" {
		t.Errorf("sha256 not computed: %v", put.Checksums)
	}
	if put.Checksums[checksum.MD5] == "" {
		t.Error("caller-supplied checksums should be kept")
	}

	got, ok, err := s.Lookup(ctx, "php-source:8.2.10")
	if err != nil || !ok {
		t.Fatalf("Lookup() = %v, %v", ok, err)
	}
	content, err := os.ReadFile(got.Path)
	if err != nil || string(content) != "hello\n" {
		t.Errorf("blob content = %q, %v", content, err)
	}
	if got.ExpiresAt.IsZero() || got.Source == "" {
		t.Errorf("metadata not persisted: %+v", got)
	}
}

func TestStoreCopyTo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.Put(ctx, "k", writeSource(t, "payload"), PutOptions{}); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "out", "php.tar.gz")
	if _, err := s.CopyTo(ctx, "k", dest); err != nil {
		t.Fatalf("CopyTo() error: %v", err)
	}
	if data, _ := os.ReadFile(dest); string(data) != "payload" {
		t.Errorf("dest content = %q", data)
	}

	if _, err := s.CopyTo(ctx, "missing", dest); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("CopyTo(missing) error = %v, want ErrCacheMiss", err)
	}
}

func TestStoreExpiryAndPrune(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if _, err := s.Put(ctx, "old", writeSource(t, "a"), PutOptions{TTL: time.Hour}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, "fresh", writeSource(t, "b"), PutOptions{TTL: 48 * time.Hour}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, "pinned", writeSource(t, "c"), PutOptions{}); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Hour)
	if _, ok, _ := s.Lookup(ctx, "old"); ok {
		t.Error("expired entry should miss")
	}

	removed, err := s.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d, want 1", removed)
	}
	entries, _ := s.Entries()
	if len(entries) != 2 || entries[0].Key != "fresh" || entries[1].Key != "pinned" {
		t.Errorf("Entries() after prune = %+v", entries)
	}
}

func TestStoreIncompleteEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e, err := s.Put(ctx, "k", writeSource(t, "full content"), PutOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(e.Path, []byte("trunc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Lookup(ctx, "k"); ok {
		t.Error("size mismatch between sidecar and blob should be a miss")
	}
}

func TestStoreEvictAndClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, k := range []string{"a", "b"} {
		if _, err := s.Put(ctx, k, writeSource(t, k), PutOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Evict(ctx, "a"); err != nil {
		t.Fatalf("Evict() error: %v", err)
	}
	if err := s.Evict(ctx, "a"); err != nil {
		t.Errorf("Evict() of missing key error: %v", err)
	}
	if _, ok, _ := s.Lookup(ctx, "a"); ok {
		t.Error("evicted entry should miss")
	}
	if size, _ := s.Size(); size != 1 {
		t.Errorf("Size() = %d, want 1", size)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if entries, _ := s.Entries(); len(entries) != 0 {
		t.Errorf("Entries() after Clear = %d", len(entries))
	}
}

func TestStoreConcurrentReadersSeeCompleteContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	small := bytes.Repeat([]byte("a"), 1024)
	large := bytes.Repeat([]byte("b"), 256*1024)
	srcSmall := writeSource(t, string(small))
	srcLarge := writeSource(t, string(large))
	if _, err := s.Put(ctx, "k", srcSmall, PutOptions{}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			src := srcSmall
			if i%2 == 0 {
				src = srcLarge
			}
			if _, err := s.Put(ctx, "k", src, PutOptions{}); err != nil {
				errs <- err
			}
		}(i)
		go func() {
			defer wg.Done()
			dest := filepath.Join(t.TempDir(), "out")
			if _, err := s.CopyTo(ctx, "k", dest); err != nil {
				errs <- err
				return
			}
			data, _ := os.ReadFile(dest)
			if !bytes.Equal(data, small) && !bytes.Equal(data, large) {
				errs <- errors.New("reader observed partial content")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
