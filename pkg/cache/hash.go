package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// HashKey derives a fixed-length key from parts, e.g. the URLs of a mirror
// set. Order matters.
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

// shardedPath places key under one of 256 subdirectories of dir, named by
// the first byte of its hash.
func shardedPath(dir, key, ext string) string {
	h := HashKey(key)
	return filepath.Join(dir, h[:2], h[2:]+ext)
}
