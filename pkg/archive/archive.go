// Package archive unpacks downloaded artifacts and finds the source tree inside.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	perrors "github.com/matzehuels/phpup/pkg/errors"
)

// Format identifies an archive container.
type Format string

const (
	FormatUnknown Format = ""
	FormatTarGz   Format = "tar.gz"
	FormatTarBz2  Format = "tar.bz2"
	FormatTarXz   Format = "tar.xz"
	FormatTar     Format = "tar"
	FormatZip     Format = "zip"
)

// ErrUnsafePath is returned for entries that would land outside the destination.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// Extractor unpacks an archive file into a directory.
type Extractor interface {
	Extract(ctx context.Context, file, destDir string) error
}

// Native extracts archives in-process.
type Native struct{}

// NewExtractor returns the in-process extractor.
func NewExtractor() *Native { return &Native{} }

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTarGz},
	{".tar.bz2", FormatTarBz2},
	{".tbz2", FormatTarBz2},
	{".tar.xz", FormatTarXz},
	{".txz", FormatTarXz},
	{".tar", FormatTar},
	{".zip", FormatZip},
}

// FormatFromName guesses the format from a file name.
func FormatFromName(name string) Format {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format
		}
	}
	return FormatUnknown
}

// Sniff detects the format from the leading bytes of r.
func Sniff(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, []byte{0x1f, 0x8b}):
		return FormatTarGz
	case bytes.HasPrefix(header, []byte("BZh")):
		return FormatTarBz2
	case bytes.HasPrefix(header, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return FormatTarXz
	case bytes.HasPrefix(header, []byte("PK\x03\x04")):
		return FormatZip
	case len(header) >= 262 && string(header[257:262]) == "ustar":
		return FormatTar
	}
	return FormatUnknown
}

// Detect returns the format of file, trusting its content over its name.
func Detect(file string) (Format, error) {
	f, err := os.Open(file)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()
	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatUnknown, err
	}
	if format := Sniff(header[:n]); format != FormatUnknown {
		return format, nil
	}
	return FormatFromName(file), nil
}

// Extract unpacks file into destDir, creating destDir if needed.
func (n *Native) Extract(ctx context.Context, file, destDir string) error {
	format, err := Detect(file)
	if err != nil {
		return fmt.Errorf("detect archive format: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	dest, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}
	// Entries are checked against the real location of dest.
	if dest, err = filepath.EvalSymlinks(dest); err != nil {
		return err
	}

	if format == FormatZip {
		return extractZip(ctx, file, dest)
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	br := bufio.NewReader(f)

	var r io.Reader
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	case FormatTarBz2:
		r = bzip2.NewReader(br)
	case FormatTarXz:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return fmt.Errorf("open xz stream: %w", err)
		}
		r = xzr
	case FormatTar:
		r = br
	default:
		return perrors.New(perrors.ErrCodeUnsupported, "unsupported archive format: %s", filepath.Base(file))
	}
	return extractTar(ctx, tar.NewReader(r), dest)
}

// safeJoin resolves name inside dest or fails with ErrUnsafePath. The
// parent directory of the result is resolved through symlinks already on
// disk, so a link planted by an earlier entry cannot redirect later writes.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	if !within(dest, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	parent, err := resolveExisting(filepath.Dir(target))
	if err != nil {
		return "", err
	}
	if !within(dest, parent) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return filepath.Join(parent, filepath.Base(target)), nil
}

func within(dest, p string) bool {
	return p == dest || strings.HasPrefix(p, dest+string(os.PathSeparator))
}

// resolveExisting evaluates symlinks in the longest existing prefix of the
// clean absolute path p and appends the components that do not exist yet.
func resolveExisting(p string) (string, error) {
	cur, rest := p, ""
	for {
		if _, err := os.Lstat(cur); err == nil {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
	real, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", err
	}
	return filepath.Join(real, rest), nil
}

// linkTarget follows link from dir one component at a time, resolving
// symlinks on disk as it goes, and fails if any step leaves dest.
func linkTarget(dest, dir, link string) (string, error) {
	cur := dir
	for _, part := range strings.Split(filepath.ToSlash(link), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
		default:
			cur = filepath.Join(cur, part)
			if fi, err := os.Lstat(cur); err == nil && fi.Mode()&os.ModeSymlink != 0 {
				real, err := filepath.EvalSymlinks(cur)
				if err != nil {
					return "", fmt.Errorf("%w: dangling link chain through %s", ErrUnsafePath, cur)
				}
				cur = real
			}
		}
		if !within(dest, cur) {
			return "", fmt.Errorf("%w: symlink target %s", ErrUnsafePath, link)
		}
	}
	return cur, nil
}

func extractTar(ctx context.Context, tr *tar.Reader, dest string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		// pax_global_header and similar carry no files.
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		mode := os.FileMode(hdr.Mode).Perm()
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, mode); err != nil {
				return err
			}
		case tar.TypeSymlink:
			link := hdr.Linkname
			if filepath.IsAbs(link) {
				return fmt.Errorf("%w: absolute symlink %s -> %s", ErrUnsafePath, hdr.Name, link)
			}
			if _, err := linkTarget(dest, filepath.Dir(target), link); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(link, target); err != nil && !os.IsExist(err) {
				return err
			}
		case tar.TypeLink:
			src, err := safeJoin(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Link(src, target); err != nil && !os.IsExist(err) {
				return err
			}
		default:
			// Devices and fifos never appear in source tarballs.
		}
	}
}

func extractZip(ctx context.Context, file, dest string) error {
	zr, err := zip.OpenReader(file)
	if errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, file)
	}
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		mode := f.Mode().Perm()
		if mode == 0 {
			mode = 0o644
		}
		err = writeFile(target, rc, mode)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	// A later entry replaces an earlier symlink instead of writing through it.
	if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return err
		}
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// LocateSourceRoot returns the directory that holds the build markers: dir
// itself when it contains one, otherwise the single nested directory that
// does. Loose files next to the nested directory (PECL's package.xml) are
// ignored.
func LocateSourceRoot(dir string, markers []string) (string, error) {
	if hasMarker(dir, markers) {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", perrors.Wrap(perrors.ErrCodeSourceLayoutUnrecognized, err, "read %s", dir)
	}
	var candidates []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		if hasMarker(sub, markers) {
			candidates = append(candidates, sub)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", perrors.New(perrors.ErrCodeSourceLayoutUnrecognized,
			"no source root with any of %v under %s", markers, dir)
	default:
		return "", perrors.New(perrors.ErrCodeSourceLayoutUnrecognized,
			"ambiguous source root: %d directories under %s hold build markers", len(candidates), dir)
	}
}

func hasMarker(dir string, markers []string) bool {
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
			return true
		}
	}
	return false
}
