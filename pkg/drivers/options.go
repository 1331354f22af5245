package drivers

import (
	"path/filepath"
	"strings"

	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/driver"
)

// OptionStrategy contributes ./configure options for one build. Strategies
// return nil when they do not apply.
type OptionStrategy func(bc *driver.BuildContext) []string

// collect runs strategies in order. When two strategies set the same
// option ("--with-openssl" and "--with-openssl=/opt/x") the later one wins
// but keeps the position of the first.
func collect(bc *driver.BuildContext, strategies []OptionStrategy) []string {
	var opts []string
	index := make(map[string]int)
	for _, s := range strategies {
		for _, o := range s(bc) {
			name, _, _ := strings.Cut(o, "=")
			if i, ok := index[name]; ok {
				opts[i] = o
				continue
			}
			index[name] = len(opts)
			opts = append(opts, o)
		}
	}
	return opts
}

// between reports lo <= version < hi. An empty bound is open.
func between(version, lo, hi string) bool {
	if lo != "" && !capability.AtLeast(version, lo) {
		return false
	}
	return hi == "" || capability.Compare(version, hi) < 0
}

func etcDir(prefix string) string   { return filepath.Join(prefix, "etc") }
func confDDir(prefix string) string { return filepath.Join(prefix, "etc", "conf.d") }

// BaseOptions sets the prefix and the ini search paths, and enables the
// extensions every phpup runtime ships with.
func BaseOptions(bc *driver.BuildContext) []string {
	return []string{
		"--prefix=" + bc.InstallPrefix,
		"--with-config-file-path=" + etcDir(bc.InstallPrefix),
		"--with-config-file-scan-dir=" + confDDir(bc.InstallPrefix),
		"--enable-mbstring",
		"--enable-bcmath",
		"--enable-sockets",
		"--enable-pcntl",
		"--enable-exif",
		"--with-openssl",
		"--with-zlib",
		"--with-curl",
		"--with-readline",
	}
}

// ZipOptions picks the zip flag; PHP 7.4 renamed --enable-zip to --with-zip.
func ZipOptions(bc *driver.BuildContext) []string {
	if capability.AtLeast(bc.Capability.Version, "7.4") {
		return []string{"--with-zip"}
	}
	return []string{"--enable-zip"}
}

// OpcacheOptions enables opcache from PHP 8.0 on. The JIT is enabled where
// it has a backend: x86_64 from 8.0 and aarch64 from 8.1.
func OpcacheOptions(bc *driver.BuildContext) []string {
	v := bc.Capability.Version
	if !capability.AtLeast(v, "8.0") {
		return nil
	}
	switch {
	case bc.Platform.Arch == "x86_64":
		return []string{"--enable-opcache", "--enable-opcache-jit"}
	case bc.Platform.Arch == "aarch64" && capability.AtLeast(v, "8.1"):
		return []string{"--enable-opcache", "--enable-opcache-jit"}
	default:
		return []string{"--enable-opcache", "--disable-opcache-jit"}
	}
}

// PCREJITOptions disables the PCRE JIT on aarch64 before PHP 7.3, whose
// bundled PCRE does not build its JIT there.
func PCREJITOptions(bc *driver.BuildContext) []string {
	if bc.Platform.Arch == "aarch64" && !capability.AtLeast(bc.Capability.Version, "7.3") {
		return []string{"--without-pcre-jit"}
	}
	return nil
}

// LegacyOptions covers the 5.6 to 7.3 series.
func LegacyOptions(bc *driver.BuildContext) []string {
	v := bc.Capability.Version
	if !between(v, "5.6", "7.4") {
		return nil
	}
	opts := []string{"--with-libxml-dir=/usr", "--enable-libxml"}
	if !capability.AtLeast(v, "7.0") {
		opts = append(opts, "--with-mysql=mysqlnd")
	}
	return append(opts,
		"--with-mysqli=mysqlnd",
		"--with-pdo-mysql=mysqlnd",
	)
}

// ModernOptions covers 7.4 and later, where mysqlnd is the default driver.
func ModernOptions(bc *driver.BuildContext) []string {
	if !capability.AtLeast(bc.Capability.Version, "7.4") {
		return nil
	}
	return []string{"--with-mysqli", "--with-pdo-mysql", "--with-sodium"}
}

// LegacyOpenSSLOptions points PHP releases before 8.1 at an OpenSSL 1.1
// install, as the OpenSSL 3 shipped by Ubuntu 22.04 cannot build them.
func LegacyOpenSSLOptions(bc *driver.BuildContext) []string {
	if capability.AtLeast(bc.Capability.Version, "8.1") {
		return nil
	}
	return []string{"--with-openssl=" + LegacyOpenSSLPrefix}
}

// LegacyOpenSSLPrefix is where an OpenSSL 1.1 build is expected on hosts
// whose system OpenSSL is too new for PHP 7.x.
const LegacyOpenSSLPrefix = "/opt/openssl-1.1"

// MuslOptions adapts the build to musl, whose iconv lacks what ext/iconv
// needs; Alpine ships GNU libiconv separately.
func MuslOptions(*driver.BuildContext) []string {
	return []string{"--with-iconv=/usr"}
}

// Lib64Options sets the library dir on RHEL-family hosts.
func Lib64Options(bc *driver.BuildContext) []string {
	if bc.Platform.Arch == "x86_64" || bc.Platform.Arch == "aarch64" {
		return []string{"--with-libdir=lib64"}
	}
	return nil
}

// RuntimeStrategies is the option list shared by every runtime driver.
var RuntimeStrategies = []OptionStrategy{
	BaseOptions,
	ZipOptions,
	LegacyOptions,
	ModernOptions,
	OpcacheOptions,
	PCREJITOptions,
}
