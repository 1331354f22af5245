package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLayout(t *testing.T) {
	p := New("/opt/phpup")
	tests := map[string]string{
		p.Version("8.2.10"):    "/opt/phpup/versions/8.2.10",
		p.PHPBinary("8.2.10"):  "/opt/phpup/versions/8.2.10/bin/php",
		p.ConfD("8.2.10"):      "/opt/phpup/versions/8.2.10/etc/conf.d",
		p.Extensions("8.2.10"): "/opt/phpup/versions/8.2.10/lib/php/extensions",
		p.Artifacts():          "/opt/phpup/cache/artifacts",
		p.Config():             "/opt/phpup/config",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	env := t.TempDir()
	t.Setenv(EnvRoot, env)

	p, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if p.Root != env {
		t.Errorf("Root = %q, want env root %q", p.Root, env)
	}

	flag := t.TempDir()
	p, err = Resolve(flag)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if p.Root != flag {
		t.Errorf("Root = %q, want flag root %q", p.Root, flag)
	}
}

func TestResolveDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvRoot, "")
	t.Setenv("HOME", home)

	p, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if want := filepath.Join(home, ".phpup"); p.Root != want {
		t.Errorf("Root = %q, want %q", p.Root, want)
	}
}

func TestEnsure(t *testing.T) {
	p := New(t.TempDir())
	if err := p.Ensure(); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	for _, dir := range []string{p.Versions(), p.Artifacts(), p.Metadata(), p.Config(), p.Tmp()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created", dir)
		}
	}
}
