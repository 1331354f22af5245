package build

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	perrors "github.com/matzehuels/phpup/pkg/errors"
)

// LockPath returns the advisory lock file guarding prefix.
func LockPath(prefix string) string {
	return filepath.Clean(prefix) + ".lock"
}

// Lock takes the exclusive install lock for prefix without waiting. The
// returned function releases it.
func Lock(prefix string) (func(), error) {
	path := LockPath(prefix)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInternal, err, "create %s", filepath.Dir(path))
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeLocked, err, "lock %s", path)
	}
	if !locked {
		return nil, perrors.New(perrors.ErrCodeLocked, "another phpup process is installing into %s", prefix)
	}
	return func() { _ = fl.Unlock() }, nil
}
