// Package checksum computes and verifies artifact digests.
package checksum

import (
	"bufio"
	"crypto/md5"  //nolint:gosec // vendors still publish md5 sums for old releases
	"crypto/sha1" //nolint:gosec // vendors still publish sha1 sums for old releases
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"slices"
	"strings"
)

// Algorithm names a digest function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	SHA1   Algorithm = "sha1"
	MD5    Algorithm = "md5"
)

// Supported lists every known algorithm, strongest first.
var Supported = []Algorithm{SHA256, SHA512, SHA1, MD5}

var (
	// ErrChecksumMismatch indicates a computed digest differs from the expected one.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrUnknownAlgorithm is returned for algorithm names outside Supported.
	ErrUnknownAlgorithm = errors.New("unknown checksum algorithm")

	errNoValidEntries = errors.New("no valid checksum entries found")
)

// ChecksumError describes one failed comparison. It wraps ErrChecksumMismatch.
type ChecksumError struct {
	Filename  string
	Algorithm Algorithm
	Expected  string
	Got       string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s checksum mismatch for %s: expected %s, got %s", e.Algorithm, e.Filename, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch so callers can use errors.Is.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// Set maps an algorithm to a hex digest.
type Set map[Algorithm]string

// Algorithms returns the algorithms present in s in Supported order.
func (s Set) Algorithms() []Algorithm {
	var out []Algorithm
	for _, a := range Supported {
		if _, ok := s[a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Merge returns a copy of s overlaid with other.
func (s Set) Merge(other Set) Set {
	out := make(Set, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// ParseAlgorithm accepts "sha256", "SHA-256" and similar spellings.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", ""))
	if !slices.Contains(Supported, a) {
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return a, nil
}

func newHash(a Algorithm) (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA1:
		return sha1.New(), nil //nolint:gosec
	case MD5:
		return md5.New(), nil //nolint:gosec
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, a)
	}
}

// Hasher is an io.Writer that feeds several digests at once.
type Hasher struct {
	hashes map[Algorithm]hash.Hash
	w      io.Writer
}

// NewHasher returns a Hasher for algs, defaulting to SHA256.
func NewHasher(algs ...Algorithm) (*Hasher, error) {
	if len(algs) == 0 {
		algs = []Algorithm{SHA256}
	}
	h := &Hasher{hashes: make(map[Algorithm]hash.Hash, len(algs))}
	writers := make([]io.Writer, 0, len(algs))
	for _, a := range algs {
		if _, dup := h.hashes[a]; dup {
			continue
		}
		d, err := newHash(a)
		if err != nil {
			return nil, err
		}
		h.hashes[a] = d
		writers = append(writers, d)
	}
	h.w = io.MultiWriter(writers...)
	return h, nil
}

func (h *Hasher) Write(p []byte) (int, error) { return h.w.Write(p) }

// Sum returns the digests of everything written so far.
func (h *Hasher) Sum() Set {
	out := make(Set, len(h.hashes))
	for a, d := range h.hashes {
		out[a] = hex.EncodeToString(d.Sum(nil))
	}
	return out
}

// Compute streams r once through every requested algorithm.
func Compute(r io.Reader, algs ...Algorithm) (Set, error) {
	h, err := NewHasher(algs...)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	return h.Sum(), nil
}

// ComputeFile hashes the file at path.
func ComputeFile(path string, algs ...Algorithm) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Compute(f, algs...)
}

// VerifyFile checks the file at path against every digest in expected.
// Comparison is case-insensitive. An empty expected set always passes.
func VerifyFile(path string, expected Set) error {
	if len(expected) == 0 {
		return nil
	}
	got, err := ComputeFile(path, expected.Algorithms()...)
	if err != nil {
		return err
	}
	return Compare(path, expected, got)
}

// Compare reports the first algorithm in expected whose digest differs from got.
func Compare(filename string, expected, got Set) error {
	for _, a := range expected.Algorithms() {
		if !strings.EqualFold(expected[a], got[a]) {
			return &ChecksumError{
				Filename:  filename,
				Algorithm: a,
				Expected:  strings.ToLower(expected[a]),
				Got:       got[a],
			}
		}
	}
	return nil
}

// ParseSumFile reads sha256sum-style output ("<hex>  <filename>" per line)
// and returns the digest for filename. A file holding a single bare digest
// matches any filename.
func ParseSumFile(r io.Reader, filename string) (string, error) {
	scanner := bufio.NewScanner(r)
	var bare string
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		switch {
		case len(fields) == 0:
			continue
		case len(fields) == 1 && isHex(fields[0]):
			bare = strings.ToLower(fields[0])
		case len(fields) >= 2 && isHex(fields[0]):
			if strings.TrimPrefix(fields[1], "*") == filename {
				return strings.ToLower(fields[0]), nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading checksums: %w", err)
	}
	if bare != "" {
		return bare, nil
	}
	return "", errNoValidEntries
}

func isHex(s string) bool {
	if len(s) < 32 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
