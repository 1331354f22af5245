package drivers

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/driver"
	"github.com/matzehuels/phpup/pkg/mirror"
	"github.com/matzehuels/phpup/pkg/pkgmgr"
	"github.com/matzehuels/phpup/pkg/platform"
)

func newResolver() *driver.Resolver {
	reg := driver.NewRegistry()
	Register(reg)
	return driver.NewResolver(reg)
}

func TestRegisterResolves(t *testing.T) {
	r := newResolver()
	tests := []struct {
		cap      capability.Capability
		platform platform.Tags
		want     string
	}{
		{capability.NewRuntime("8.2.10"), platform.New("ubuntu", "22.04", "x86_64"), "php-ubuntu-22.04"},
		{capability.NewRuntime("8.2.10"), platform.New("debian", "12", "x86_64"), "php"},
		{capability.NewRuntime("8.3.0"), platform.New("rocky", "9.3", "aarch64"), "php-rocky"},
		{capability.NewRuntime("8.3.0"), platform.New("alpine", "3.19", "x86_64"), "php-alpine"},
		{capability.NewExtension("redis", "", "8.2.10"), platform.New("ubuntu", "22.04", "x86_64"), "redis"},
		{capability.NewExtension("apcu", "", "8.2.10"), platform.New("ubuntu", "22.04", "x86_64"), "pecl"},
		{capability.NewExtension("imagick", "", "8.2.10"), platform.New("debian", "12", "x86_64"), "imagick"},
		{capability.NewExtension("imagick", "", "8.2.10"), platform.New("alpine", "3.19", "x86_64"), "imagick-alpine"},
		{capability.NewExtension("pecl_http", "", "8.3.4"), platform.New("debian", "12", "x86_64"), "pecl_http"},
	}
	for _, tt := range tests {
		t.Run(tt.cap.String()+"/"+tt.platform.String(), func(t *testing.T) {
			d, err := r.Resolve(tt.cap, tt.platform)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if d.Name() != tt.want {
				t.Errorf("Resolve = %s, want %s", d.Name(), tt.want)
			}
		})
	}
}

func TestRuntimeRejectsAncientVersions(t *testing.T) {
	_, err := newResolver().Resolve(capability.NewRuntime("5.4.45"), platform.New("debian", "12", "x86_64"))
	if err == nil {
		t.Fatal("Resolve(5.4.45) succeeded, want error")
	}
}

func TestRuntimeOptions(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		platform platform.Tags
		want     []string
		absent   []string
	}{
		{
			name:     "jit on x86_64",
			version:  "8.2.10",
			platform: platform.New("debian", "12", "x86_64"),
			want:     []string{"--enable-opcache", "--enable-opcache-jit", "--with-zip", "--with-sodium"},
			absent:   []string{"--without-pcre-jit", "--enable-zip"},
		},
		{
			name:     "no jit on aarch64 8.0",
			version:  "8.0.30",
			platform: platform.New("debian", "12", "aarch64"),
			want:     []string{"--enable-opcache", "--disable-opcache-jit"},
			absent:   []string{"--enable-opcache-jit"},
		},
		{
			name:     "legacy aarch64",
			version:  "7.2.34",
			platform: platform.New("debian", "10", "aarch64"),
			want:     []string{"--without-pcre-jit", "--enable-zip", "--with-mysqli=mysqlnd"},
			absent:   []string{"--enable-opcache", "--with-zip"},
		},
		{
			name:     "php 5.6",
			version:  "5.6.40",
			platform: platform.New("debian", "9", "x86_64"),
			want:     []string{"--with-mysql=mysqlnd"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc := &driver.BuildContext{
				Capability:    capability.NewRuntime(tt.version),
				Platform:      tt.platform,
				InstallPrefix: "/opt/phpup/versions/" + tt.version,
			}
			opts := NewRuntime("php").ConfigureOptions(bc)
			if opts[0] != "--prefix=/opt/phpup/versions/"+tt.version {
				t.Errorf("first option = %q, want --prefix", opts[0])
			}
			for _, w := range tt.want {
				if !slices.Contains(opts, w) {
					t.Errorf("options missing %q: %v", w, opts)
				}
			}
			for _, a := range tt.absent {
				if slices.Contains(opts, a) {
					t.Errorf("options contain %q: %v", a, opts)
				}
			}
		})
	}
}

func TestUbuntu2204LegacyOpenSSL(t *testing.T) {
	tags := platform.New("ubuntu", "22.04", "x86_64")
	d, err := newResolver().Resolve(capability.NewRuntime("7.4.33"), tags)
	if err != nil {
		t.Fatal(err)
	}
	bc := &driver.BuildContext{Capability: capability.NewRuntime("7.4.33"), Platform: tags, InstallPrefix: "/p"}
	opts := d.ConfigureOptions(bc)
	if slices.Contains(opts, "--with-openssl") || !slices.Contains(opts, "--with-openssl="+LegacyOpenSSLPrefix) {
		t.Errorf("options = %v, want --with-openssl replaced by the legacy prefix", opts)
	}

	bc.ConfigureOptions = opts
	cmds := d.Configure(bc)
	last := cmds[len(cmds)-1]
	if len(last.Env) != 1 || !strings.HasPrefix(last.Env[0], "PKG_CONFIG_PATH=") {
		t.Errorf("configure env = %v", last.Env)
	}
}

func TestCollectLaterOptionWins(t *testing.T) {
	got := collect(&driver.BuildContext{}, []OptionStrategy{
		Flags("--a", "--with-x", "--b"),
		Flags("--with-x=/opt/x", "--a"),
	})
	want := []string{"--a", "--with-x=/opt/x", "--b"}
	if !slices.Equal(got, want) {
		t.Errorf("collect = %v, want %v", got, want)
	}
}

func TestRuntimePostConfigure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	prefix := filepath.Join(dir, "prefix")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "php.ini-development"), []byte("display_errors = On\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bc := &driver.BuildContext{Capability: capability.NewRuntime("8.3.4"), InstallPrefix: prefix, SourceDir: src}
	if err := NewRuntime("php").PostConfigure(context.Background(), bc); err != nil {
		t.Fatalf("PostConfigure: %v", err)
	}

	ini, err := os.ReadFile(filepath.Join(prefix, "etc", "php.ini"))
	if err != nil || string(ini) != "display_errors = On\n" {
		t.Errorf("php.ini = %q, %v", ini, err)
	}
	if _, err := os.Stat(filepath.Join(prefix, "etc", "conf.d", "00-phpup.ini")); err != nil {
		t.Errorf("default ini missing: %v", err)
	}

	// An existing php.ini is kept.
	if err := os.WriteFile(filepath.Join(prefix, "etc", "php.ini"), []byte("custom\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewRuntime("php").PostConfigure(context.Background(), bc); err != nil {
		t.Fatal(err)
	}
	if ini, _ := os.ReadFile(filepath.Join(prefix, "etc", "php.ini")); string(ini) != "custom\n" {
		t.Errorf("php.ini overwritten: %q", ini)
	}
}

func TestRuntimeRemoveRefusesRoot(t *testing.T) {
	for _, prefix := range []string{"", "/", "relative/path"} {
		bc := &driver.BuildContext{InstallPrefix: prefix}
		if err := NewRuntime("php").Remove(context.Background(), bc); err == nil {
			t.Errorf("Remove(%q) succeeded, want error", prefix)
		}
	}
}

func TestExtensionLifecycle(t *testing.T) {
	prefix := t.TempDir()
	extDir := filepath.Join(prefix, "lib", "php", "extensions", "no-debug-non-zts-20230831")
	if err := os.MkdirAll(extDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(extDir, "xdebug.so"), []byte("elf"), 0o755); err != nil {
		t.Fatal(err)
	}

	d, err := newResolver().Resolve(capability.NewExtension("xdebug", "3.3.1", "8.3.4"), platform.New("debian", "12", "x86_64"))
	if err != nil {
		t.Fatal(err)
	}
	bc := &driver.BuildContext{
		Capability:    capability.NewExtension("xdebug", "3.3.1", "8.3.4"),
		InstallPrefix: prefix,
		RuntimePrefix: prefix,
		SourceDir:     "/tmp/src",
	}
	bc.ConfigureOptions = d.ConfigureOptions(bc)
	cmds := d.Configure(bc)
	if cmds[0].Name != filepath.Join(prefix, "bin", "phpize") {
		t.Errorf("first configure command = %s, want phpize", cmds[0].Name)
	}
	if !slices.Contains(cmds[1].Args, "--with-php-config="+filepath.Join(prefix, "bin", "php-config")) {
		t.Errorf("configure args = %v", cmds[1].Args)
	}

	if err := d.PostConfigure(context.Background(), bc); err != nil {
		t.Fatal(err)
	}
	ini, err := os.ReadFile(IniPath(prefix, "xdebug"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(ini), "zend_extension=xdebug.so") {
		t.Errorf("ini = %q, want zend_extension", ini)
	}

	if err := d.Remove(context.Background(), bc); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{IniPath(prefix, "xdebug"), filepath.Join(extDir, "xdebug.so")} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists after Remove", p)
		}
	}
}

func TestImagickAlpineVariant(t *testing.T) {
	d, err := newResolver().Resolve(capability.NewExtension("imagick", "3.7.0", "8.2.10"), platform.New("alpine", "3.19", "x86_64"))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(d.Tags(), []string{"alpine"}) {
		t.Errorf("Tags = %v, want [alpine]", d.Tags())
	}
	apk := d.Dependencies(nil).For(pkgmgr.Apk)
	for _, want := range []string{"imagemagick-dev", "libgomp", "autoconf"} {
		if !slices.Contains(apk, want) {
			t.Errorf("apk dependencies %v missing %s", apk, want)
		}
	}
}

func TestExtensionSharedObjectName(t *testing.T) {
	prefix := t.TempDir()
	extDir := filepath.Join(prefix, "lib", "php", "extensions", "no-debug-non-zts-20230831")
	if err := os.MkdirAll(extDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(extDir, "http.so"), []byte("elf"), 0o755); err != nil {
		t.Fatal(err)
	}

	c := capability.NewExtension("pecl_http", "4.2.4", "8.3.4")
	d, err := newResolver().Resolve(c, platform.New("debian", "12", "x86_64"))
	if err != nil {
		t.Fatal(err)
	}
	bc := &driver.BuildContext{Capability: c, InstallPrefix: prefix, RuntimePrefix: prefix}
	if err := d.PostConfigure(context.Background(), bc); err != nil {
		t.Fatal(err)
	}
	ini, err := os.ReadFile(IniPath(prefix, "pecl_http"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(ini), "\nextension=http.so\n") {
		t.Errorf("ini = %q, want extension=http.so", ini)
	}
	if got := d.Source(bc); got != mirror.PECLRef("pecl_http", "4.2.4") {
		t.Errorf("Source = %+v", got)
	}

	if err := d.Remove(context.Background(), bc); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(extDir, "http.so")); !os.IsNotExist(err) {
		t.Error("http.so still exists after Remove")
	}
}

func TestGenericExtensionIni(t *testing.T) {
	prefix := t.TempDir()
	bc := &driver.BuildContext{Capability: capability.NewExtension("apcu", "5.1.23", "8.2.0"), RuntimePrefix: prefix}
	e := NewExtension("")
	if err := e.PostConfigure(context.Background(), bc); err != nil {
		t.Fatal(err)
	}
	ini, _ := os.ReadFile(IniPath(prefix, "apcu"))
	if !strings.Contains(string(ini), "\nextension=apcu.so\n") {
		t.Errorf("ini = %q", ini)
	}
	if got := e.Source(bc); got != mirror.PECLRef("apcu", "5.1.23") {
		t.Errorf("Source = %+v", got)
	}
}

func TestExtensionPins(t *testing.T) {
	tests := []struct {
		ext, php, want string
	}{
		{"xdebug", "7.4.33", "3.1.6"},
		{"xdebug", "8.0.30", "3.3.2"},
		{"xdebug", "8.3.4", ""},
		{"redis", "7.3.33", "5.3.7"},
		{"swoole", "7.4.33", "4.8.13"},
	}
	r := newResolver()
	for _, tt := range tests {
		d, err := r.Resolve(capability.NewExtension(tt.ext, "", tt.php), platform.New("debian", "12", "x86_64"))
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tt.ext, err)
		}
		pinner, ok := d.(driver.VersionPinner)
		if !ok {
			t.Fatalf("%s driver has no pins", tt.ext)
		}
		if got := pinner.PinnedVersion(tt.php); got != tt.want {
			t.Errorf("%s PinnedVersion(%s) = %q, want %q", tt.ext, tt.php, got, tt.want)
		}
	}
}

func TestSwooleFromGitHub(t *testing.T) {
	bc := &driver.BuildContext{Capability: capability.NewExtension("swoole", "5.1.1", "8.2.0")}
	d, err := newResolver().Resolve(bc.Capability, platform.New("debian", "12", "x86_64"))
	if err != nil {
		t.Fatal(err)
	}
	want := mirror.GitHubRef("swoole", "swoole-src", "v5.1.1")
	if got := d.Source(bc); got != want {
		t.Errorf("Source = %+v, want %+v", got, want)
	}
}
