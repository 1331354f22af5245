package checksum

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Digests of "hello\n".
const (
	helloSHA256 = "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"
	helloMD5    = "b1946ac92492d2347c6235b4d2611184"
)

func writeHello(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompute(t *testing.T) {
	got, err := Compute(strings.NewReader("hello\n"), SHA256, MD5, SHA256)
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if got[SHA256] != helloSHA256 {
		t.Errorf("sha256 = %s", got[SHA256])
	}
	if got[MD5] != helloMD5 {
		t.Errorf("md5 = %s", got[MD5])
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestVerifyFile(t *testing.T) {
	path := writeHello(t)

	tests := []struct {
		name     string
		expected Set
		wantErr  bool
	}{
		{"empty set passes", nil, false},
		{"match", Set{SHA256: helloSHA256}, false},
		{"uppercase match", Set{SHA256: strings.ToUpper(helloSHA256)}, false},
		{"all listed must match", Set{SHA256: helloSHA256, MD5: strings.Repeat("0", 32)}, true},
		{"mismatch", Set{SHA256: strings.Repeat("a", 64)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyFile(path, tt.expected)
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifyFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrChecksumMismatch) {
				t.Errorf("error %v should wrap ErrChecksumMismatch", err)
			}
		})
	}
}

func TestChecksumErrorFields(t *testing.T) {
	err := VerifyFile(writeHello(t), Set{MD5: strings.Repeat("F", 32)})
	var ce *ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *ChecksumError", err)
	}
	if ce.Algorithm != MD5 || ce.Got != helloMD5 || ce.Expected != strings.Repeat("f", 32) {
		t.Errorf("ChecksumError = %+v", ce)
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := map[string]Algorithm{"sha256": SHA256, "SHA-256": SHA256, " sha512 ": SHA512, "MD5": MD5}
	for in, want := range tests {
		got, err := ParseAlgorithm(in)
		if err != nil || got != want {
			t.Errorf("ParseAlgorithm(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseAlgorithm("crc32"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("ParseAlgorithm(crc32) error = %v", err)
	}
}

func TestParseSumFile(t *testing.T) {
	file := helloSHA256 + "  composer.phar\n" + strings.Repeat("b", 64) + "  other.phar\n"
	got, err := ParseSumFile(strings.NewReader(file), "composer.phar")
	if err != nil || got != helloSHA256 {
		t.Errorf("ParseSumFile() = %q, %v", got, err)
	}

	got, err = ParseSumFile(strings.NewReader(strings.ToUpper(helloSHA256)+"\n"), "anything")
	if err != nil || got != helloSHA256 {
		t.Errorf("bare digest = %q, %v", got, err)
	}

	if _, err := ParseSumFile(strings.NewReader("garbage\n"), "composer.phar"); err == nil {
		t.Error("expected error for file without digests")
	}
}

func TestSetAlgorithmsAndMerge(t *testing.T) {
	s := Set{MD5: "a", SHA256: "b"}.Merge(Set{SHA1: "c", MD5: "d"})
	got := s.Algorithms()
	want := []Algorithm{SHA256, SHA1, MD5}
	if len(got) != len(want) {
		t.Fatalf("Algorithms() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Algorithms()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if s[MD5] != "d" {
		t.Errorf("Merge should overlay: md5 = %s", s[MD5])
	}
}
