package provision

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/matzehuels/phpup/pkg/build"
	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/driver"
	perrors "github.com/matzehuels/phpup/pkg/errors"
	"github.com/matzehuels/phpup/pkg/mirror"
	"github.com/matzehuels/phpup/pkg/platform"
)

// installBinary installs the static php-cli build for c into its prefix and
// lets the driver write its configuration. A prefix this call created is
// removed again on failure.
func (o *Orchestrator) installBinary(ctx context.Context, d driver.Driver, c capability.Capability, plat platform.Tags) (err error) {
	if o.Artifacts == nil {
		return perrors.New(perrors.ErrCodeInvalidConfig, "no artifact source configured")
	}
	prefix := o.prefix(c)
	unlock, err := build.Lock(prefix)
	if err != nil {
		return err
	}
	defer unlock()

	_, statErr := os.Stat(prefix)
	preexisting := statErr == nil

	if err := os.MkdirAll(o.Paths.Tmp(), 0o755); err != nil {
		return perrors.Wrap(perrors.ErrCodeInternal, err, "create %s", o.Paths.Tmp())
	}
	tmp, err := os.MkdirTemp(o.Paths.Tmp(), "phpup-bin-")
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeInternal, err, "create temp dir")
	}
	defer os.RemoveAll(tmp)
	defer func() {
		if err != nil && !preexisting {
			_ = os.RemoveAll(prefix)
		}
	}()

	ref := mirror.BinaryRef(c.Version, plat.Arch)
	if err := ref.Validate(); err != nil {
		return err
	}
	archivePath := filepath.Join(tmp, ref.FileName())
	if _, err := o.Artifacts.FetchArtifact(ctx, ref, archivePath); err != nil {
		return err
	}
	unpacked := filepath.Join(tmp, "unpacked")
	if err := os.MkdirAll(unpacked, 0o755); err != nil {
		return err
	}
	if err := o.extractor().Extract(ctx, archivePath, unpacked); err != nil {
		return perrors.Wrap(perrors.ErrCodeInternal, err, "extract %s", ref.FileName())
	}
	bin, err := findBinary(unpacked)
	if err != nil {
		return err
	}
	if err := installFile(bin, filepath.Join(prefix, "bin", "php"), 0o755); err != nil {
		return perrors.Wrap(perrors.ErrCodeInternal, err, "install php binary")
	}

	bc := &driver.BuildContext{
		ID:            uuid.NewString(),
		Capability:    c,
		Platform:      plat,
		InstallPrefix: prefix,
		RuntimePrefix: prefix,
		TempDir:       tmp,
	}
	if err := d.PostConfigure(ctx, bc); err != nil {
		return perrors.Wrap(perrors.ErrCodeBuildStageFailed, err, "configure binary install").AtStage("post-configure")
	}
	return nil
}

// findBinary returns the shallowest regular file named php under dir.
func findBinary(dir string) (string, error) {
	var found string
	depth := -1
	err := filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.Name() != "php" || !e.Type().IsRegular() {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		if n := strings.Count(rel, string(filepath.Separator)); depth < 0 || n < depth {
			found, depth = path, n
		}
		return nil
	})
	if err != nil {
		return "", perrors.Wrap(perrors.ErrCodeInternal, err, "scan %s", dir)
	}
	if found == "" {
		return "", perrors.New(perrors.ErrCodeSourceLayoutUnrecognized, "archive holds no php binary")
	}
	return found, nil
}

func installFile(src, dest string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dest, mode)
}
