package provision

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/phpup/pkg/acquire"
	"github.com/matzehuels/phpup/pkg/build"
	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/driver"
	"github.com/matzehuels/phpup/pkg/drivers"
	perrors "github.com/matzehuels/phpup/pkg/errors"
	"github.com/matzehuels/phpup/pkg/mirror"
	"github.com/matzehuels/phpup/pkg/paths"
	"github.com/matzehuels/phpup/pkg/platform"
	"github.com/matzehuels/phpup/pkg/shell"
	"github.com/matzehuels/phpup/pkg/shell/shelltest"
)

var debian = platform.New("debian", "12", "x86_64")

// artifacts serves synthetic archives per artifact kind. Errors queued in
// fail are returned, one per call, before any archive is served.
type artifacts struct {
	mu   sync.Mutex
	refs []mirror.ArtifactRef
	fail map[mirror.Kind][]error
}

func (a *artifacts) FetchArtifact(_ context.Context, ref mirror.ArtifactRef, dest string) (*acquire.Result, error) {
	a.mu.Lock()
	a.refs = append(a.refs, ref)
	if errs := a.fail[ref.Kind]; len(errs) > 0 {
		a.fail[ref.Kind] = errs[1:]
		a.mu.Unlock()
		if errs[0] != nil {
			return nil, errs[0]
		}
	} else {
		a.mu.Unlock()
	}

	var files map[string]string
	switch ref.Kind {
	case mirror.PHPSource:
		root := "php-" + ref.Version + "/"
		files = map[string]string{root + "configure": "#!/bin/sh\n", root + "php.ini-development": "memory_limit=128M\n"}
	case mirror.PECLPackage:
		files = map[string]string{"package.xml": "<package/>", ref.Name + "-" + ref.Version + "/config.m4": "dnl\n"}
	case mirror.PHPBinary:
		files = map[string]string{"php": "\x7fELF"}
	case mirror.ComposerPhar:
		return &acquire.Result{Path: dest}, os.WriteFile(dest, []byte("<?php // composer\n"), 0o644)
	}
	return &acquire.Result{Path: dest}, writeTarGz(dest, files)
}

func (a *artifacts) kinds() []mirror.Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []mirror.Kind
	for _, r := range a.refs {
		out = append(out, r.Kind)
	}
	return out
}

func writeTarGz(dest string, files map[string]string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			return err
		}
		if _, err := io.WriteString(tw, body); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// buildHandler emulates make install by creating an executable php in the
// prefix given to ./configure.
func buildHandler() shelltest.Handler {
	var mu sync.Mutex
	var prefix string
	return func(cmd shell.Command) (*shell.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if cmd.Name == "./configure" {
			for _, a := range cmd.Args {
				if p, ok := strings.CutPrefix(a, "--prefix="); ok {
					prefix = p
				}
			}
		}
		if cmd.String() == "make install" && prefix != "" {
			bin := filepath.Join(prefix, "bin")
			if err := os.MkdirAll(bin, 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(filepath.Join(bin, "php"), []byte("#!/bin/sh\n"), 0o755); err != nil {
				return nil, err
			}
		}
		return &shell.Result{}, nil
	}
}

type staticIndex map[string]string

func (s staticIndex) Latest(_ context.Context, v string, _ bool) (string, error) {
	if full, ok := s[v]; ok {
		return full, nil
	}
	return "", errors.New("no such release")
}

func (s staticIndex) Stable(ctx context.Context, ext string, refresh bool) (string, error) {
	return s.Latest(ctx, ext, refresh)
}

type fixture struct {
	o         *Orchestrator
	runner    *shelltest.Runner
	artifacts *artifacts
	paths     paths.Paths
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p := paths.New(t.TempDir())
	logger := log.New(io.Discard)

	reg := driver.NewRegistry()
	drivers.Register(reg)

	f := &fixture{
		runner:    &shelltest.Runner{Handler: buildHandler()},
		artifacts: &artifacts{fail: map[mirror.Kind][]error{}},
		paths:     p,
	}
	pipeline := build.NewPipeline(nil, f.artifacts, f.runner, logger)
	pipeline.TempRoot = p.Tmp()
	f.o = New(p, driver.NewResolver(reg), pipeline, f.artifacts, logger)
	f.o.Versions = staticIndex{"8.2": "8.2.10", "8.3": "8.3.4"}
	f.o.Extensions = staticIndex{"redis": "6.0.2", "apcu": "5.1.23"}
	return f
}

// installRuntime fakes an existing runtime install.
func (f *fixture) installRuntime(t *testing.T, version string) {
	t.Helper()
	bin := f.paths.Bin(version)
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "php"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestInstallAlreadyInstalled(t *testing.T) {
	f := newFixture(t)
	f.installRuntime(t, "8.2.10")

	for _, v := range []string{"8.2.10", "8.2"} {
		_, err := f.o.Install(context.Background(), capability.NewRuntime(v), debian, Options{PreferBinary: true})
		if !perrors.Is(err, perrors.ErrCodeAlreadyInstalled) {
			t.Fatalf("Install(%s) err = %v, want ALREADY_INSTALLED", v, err)
		}
	}
	if len(f.runner.Commands()) != 0 || len(f.artifacts.kinds()) != 0 {
		t.Errorf("driver stages ran: commands=%v artifacts=%v", f.runner.Lines(), f.artifacts.kinds())
	}
}

func TestInstallFromSource(t *testing.T) {
	f := newFixture(t)
	res, err := f.o.Install(context.Background(), capability.NewRuntime("8.2"), debian, Options{})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if res.Version != "8.2.10" || res.UsedBinary || res.Attempts != 1 || res.Driver != "php" {
		t.Errorf("result = %+v", res)
	}
	if res.InstallPath != f.paths.Version("8.2.10") {
		t.Errorf("InstallPath = %s", res.InstallPath)
	}
	if !f.o.IsInstalled(capability.NewRuntime("8.2.10")) {
		t.Error("runtime not reported installed")
	}
	ini, err := os.ReadFile(filepath.Join(f.paths.Etc("8.2.10"), "php.ini"))
	if err != nil || !strings.Contains(string(ini), "memory_limit") {
		t.Errorf("php.ini not copied from php.ini-development: %q, %v", ini, err)
	}
	if !f.runner.Ran("./configure --prefix=" + f.paths.Version("8.2.10")) {
		t.Errorf("configure not run with the prefix: %v", f.runner.Lines())
	}
}

func TestInstallPartialVersionUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.o.Install(context.Background(), capability.NewRuntime("7.1"), debian, Options{})
	if !perrors.Is(err, perrors.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
	f.o.Versions = nil
	_, err = f.o.Install(context.Background(), capability.NewRuntime("8.2"), debian, Options{})
	if !perrors.Is(err, perrors.ErrCodeInvalidVersion) {
		t.Errorf("without index: err = %v, want INVALID_VERSION", err)
	}
}

func TestInstallPrefersBinary(t *testing.T) {
	f := newFixture(t)
	res, err := f.o.Install(context.Background(), capability.NewRuntime("8.3.4"), debian, Options{PreferBinary: true})
	if err != nil {
		t.Fatal(err)
	}
	if !res.UsedBinary || res.Report != nil {
		t.Errorf("result = %+v, want a binary install", res)
	}
	if len(f.runner.Commands()) != 0 {
		t.Errorf("binary install ran build commands: %v", f.runner.Lines())
	}
	if !f.o.IsInstalled(capability.NewRuntime("8.3.4")) {
		t.Error("binary not installed executable")
	}
	if _, err := os.Stat(filepath.Join(f.paths.ConfD("8.3.4"), "00-phpup.ini")); err != nil {
		t.Errorf("driver post-configure skipped: %v", err)
	}
	entries, _ := os.ReadDir(f.paths.Tmp())
	if len(entries) != 0 {
		t.Errorf("temp dir not cleaned: %d entries", len(entries))
	}
}

func TestBinaryFailureFallsBackToSource(t *testing.T) {
	f := newFixture(t)
	f.artifacts.fail[mirror.PHPBinary] = []error{
		perrors.New(perrors.ErrCodeMirrorExhausted, "no static build"),
	}
	res, err := f.o.Install(context.Background(), capability.NewRuntime("8.3.4"), debian, Options{PreferBinary: true})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if res.UsedBinary {
		t.Error("UsedBinary after binary failure")
	}
	kinds := f.artifacts.kinds()
	if len(kinds) != 2 || kinds[0] != mirror.PHPBinary || kinds[1] != mirror.PHPSource {
		t.Errorf("fetch order = %v, want binary then source", kinds)
	}
}

func TestInstallRetriesRecoverable(t *testing.T) {
	f := newFixture(t)
	f.artifacts.fail[mirror.PHPSource] = []error{
		perrors.New(perrors.ErrCodeMirrorExhausted, "all mirrors failed").AsRecoverable(),
	}
	res, err := f.o.Install(context.Background(), capability.NewRuntime("8.2.10"), debian, Options{Retries: 2, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
}

func TestInstallDoesNotRetryFatal(t *testing.T) {
	f := newFixture(t)
	f.runner.Handler = shelltest.Fail("make -j", 2, "cc: internal compiler error")
	_, err := f.o.Install(context.Background(), capability.NewRuntime("8.2.10"), debian, Options{Retries: 3, RetryDelay: time.Millisecond})
	if !perrors.Is(err, perrors.ErrCodeBuildStageFailed) || perrors.GetStage(err) != "compile" {
		t.Fatalf("err = %v", err)
	}
	if n := strings.Count(strings.Join(f.runner.Lines(), "\n"), "./configure"); n != 1 {
		t.Errorf("fatal failure retried: configure ran %d times", n)
	}
	if _, err := os.Stat(f.paths.Version("8.2.10")); !os.IsNotExist(err) {
		t.Error("failed build left a prefix behind")
	}
}

func TestInstallExtension(t *testing.T) {
	tests := []struct {
		runtime, ext, want string
	}{
		{"7.3.33", "redis", "5.3.7"}, // pinned
		{"8.2.10", "redis", "6.0.2"}, // latest stable
		{"8.2.10", "apcu", "5.1.23"}, // generic driver
	}
	for _, tt := range tests {
		t.Run(tt.runtime+"/"+tt.ext, func(t *testing.T) {
			f := newFixture(t)
			f.installRuntime(t, tt.runtime)

			res, err := f.o.Install(context.Background(), capability.NewExtension(tt.ext, "", tt.runtime), debian, Options{})
			if err != nil {
				t.Fatalf("Install: %v", err)
			}
			if res.Version != tt.want {
				t.Errorf("version = %s, want %s", res.Version, tt.want)
			}
			if !f.runner.Ran(filepath.Join(f.paths.Bin(tt.runtime), "phpize")) {
				t.Errorf("phpize of the runtime not used: %v", f.runner.Lines())
			}
			installed, err := f.o.Installed()
			if err != nil || len(installed) != 1 {
				t.Fatalf("Installed = %v, %v", installed, err)
			}
			exts := installed[0].Extensions
			if len(exts) != 1 || exts[0].Name != tt.ext || exts[0].Version != tt.want {
				t.Errorf("extensions = %+v", exts)
			}

			_, err = f.o.Install(context.Background(), capability.NewExtension(tt.ext, "", tt.runtime), debian, Options{})
			if !perrors.Is(err, perrors.ErrCodeAlreadyInstalled) {
				t.Errorf("second install: err = %v", err)
			}
		})
	}
}

func TestInstallExtensionNeedsRuntime(t *testing.T) {
	f := newFixture(t)
	_, err := f.o.Install(context.Background(), capability.NewExtension("redis", "6.0.2", "8.2.10"), debian, Options{})
	if !perrors.Is(err, perrors.ErrCodeNotInstalled) {
		t.Errorf("err = %v, want NOT_INSTALLED", err)
	}
}

func TestExtensionPartialRuntime(t *testing.T) {
	f := newFixture(t)
	f.installRuntime(t, "8.2.9")
	f.installRuntime(t, "8.2.10")
	f.installRuntime(t, "8.3.4")

	res, err := f.o.Install(context.Background(), capability.NewExtension("redis", "6.0.2", "8.2"), debian, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Capability.Runtime != "8.2.10" {
		t.Errorf("runtime = %s, want the newest installed 8.2.x", res.Capability.Runtime)
	}
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	f.installRuntime(t, "8.2.10")
	ctx := context.Background()

	if _, err := f.o.Install(ctx, capability.NewExtension("redis", "6.0.2", "8.2.10"), debian, Options{}); err != nil {
		t.Fatal(err)
	}
	if err := f.o.Remove(ctx, capability.NewExtension("redis", "", "8.2.10"), debian); err != nil {
		t.Fatalf("Remove extension: %v", err)
	}
	if f.o.IsInstalled(capability.NewExtension("redis", "", "8.2.10")) {
		t.Error("extension still enabled")
	}

	if err := f.o.Remove(ctx, capability.NewRuntime("8.2.10"), debian); err != nil {
		t.Fatalf("Remove runtime: %v", err)
	}
	if _, err := os.Stat(f.paths.Version("8.2.10")); !os.IsNotExist(err) {
		t.Error("runtime prefix survived removal")
	}
	if err := f.o.Remove(ctx, capability.NewRuntime("8.2.10"), debian); !perrors.Is(err, perrors.ErrCodeNotInstalled) {
		t.Errorf("second removal: err = %v", err)
	}
	if err := f.o.Remove(ctx, capability.NewRuntime("8.2"), debian); !perrors.Is(err, perrors.ErrCodeInvalidVersion) {
		t.Errorf("partial removal: err = %v", err)
	}
}

func TestIsInstalledNeedsExecutable(t *testing.T) {
	f := newFixture(t)
	bin := f.paths.Bin("8.1.27")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "php"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if f.o.IsInstalled(capability.NewRuntime("8.1.27")) {
		t.Error("non-executable php counted as installed")
	}
	if err := os.MkdirAll(f.paths.Version("8.0.30"), 0o755); err != nil {
		t.Fatal(err)
	}
	installed, err := f.o.Installed()
	if err != nil || len(installed) != 0 {
		t.Errorf("Installed = %v, %v", installed, err)
	}
}

func TestInstalledSorted(t *testing.T) {
	f := newFixture(t)
	for _, v := range []string{"8.10.0", "8.2.10", "7.4.33"} {
		f.installRuntime(t, v)
	}
	installed, err := f.o.Installed()
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, i := range installed {
		got = append(got, i.Version)
	}
	if strings.Join(got, " ") != "7.4.33 8.2.10 8.10.0" {
		t.Errorf("Installed = %v", got)
	}
}

func TestFetchComposer(t *testing.T) {
	f := newFixture(t)
	dest := filepath.Join(t.TempDir(), "bin", "composer")
	if _, err := f.o.FetchComposer(context.Background(), "2", dest); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dest)
	if err != nil || info.Mode().Perm()&0o111 == 0 {
		t.Errorf("composer not executable: %v", err)
	}
	if refs := f.artifacts.refs; len(refs) != 1 || refs[0].Key() != "composer-phar/latest-2.x" {
		t.Errorf("refs = %v", refs)
	}
}
