package cache

import "errors"

var (
	// ErrCacheMiss is returned by Store methods that require an existing entry.
	ErrCacheMiss = errors.New("cache miss")

	// ErrLocked is returned when an entry lock cannot be acquired before the context ends.
	ErrLocked = errors.New("cache entry locked")
)
