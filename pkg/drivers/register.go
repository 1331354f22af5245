package drivers

import (
	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/driver"
	"github.com/matzehuels/phpup/pkg/pkgmgr"
)

// rhelFamily lists the distro IDs that get the lib64 runtime variant.
var rhelFamily = []string{"rhel", "centos", "rocky", "almalinux", "ol", "fedora", "amzn"}

// Register adds every built-in driver to reg.
func Register(reg *driver.Registry) {
	registerRuntimes(reg)
	registerExtensions(reg)
}

func registerRuntimes(reg *driver.Registry) {
	reg.SetGeneric(capability.Runtime, driver.Descriptor{
		Name:    "php",
		Factory: func() driver.Driver { return NewRuntime("php") },
	})

	reg.Register(capability.Runtime, capability.RuntimeName, driver.Descriptor{
		Name:         "php-ubuntu-22.04",
		RequiredTags: []string{"ubuntu-22.04"},
		Factory: func() driver.Driver {
			return NewRuntime("php-ubuntu-22.04",
				WithRuntimeTags("ubuntu-22.04"),
				WithOptions(LegacyOpenSSLOptions),
				WithConfigureEnv(func(bc *driver.BuildContext) []string {
					if capability.AtLeast(bc.Capability.Version, "8.1") {
						return nil
					}
					return []string{"PKG_CONFIG_PATH=" + LegacyOpenSSLPrefix + "/lib/pkgconfig"}
				}),
			)
		},
	})

	reg.Register(capability.Runtime, capability.RuntimeName, driver.Descriptor{
		Name:         "php-alpine",
		RequiredTags: []string{"alpine"},
		Factory: func() driver.Driver {
			return NewRuntime("php-alpine",
				WithRuntimeTags("alpine"),
				WithRuntimeDependencies(pkgmgr.DependencySet{pkgmgr.Apk: {"gnu-libiconv-dev", "linux-headers"}}),
				WithOptions(MuslOptions),
			)
		},
	})

	for _, distro := range rhelFamily {
		reg.Register(capability.Runtime, capability.RuntimeName, driver.Descriptor{
			Name:         "php-" + distro,
			RequiredTags: []string{distro},
			Factory: func() driver.Driver {
				return NewRuntime("php-"+distro,
					WithRuntimeTags(distro),
					WithOptions(Lib64Options),
				)
			},
		})
	}
}

func registerExtensions(reg *driver.Registry) {
	reg.SetGeneric(capability.Extension, driver.Descriptor{
		Name:    "pecl",
		Factory: func() driver.Driver { return NewExtension("") },
	})

	for _, d := range builtinExtensions {
		reg.Register(capability.Extension, d.Name, d)
	}

	// musl builds of ImageMagick link against libgomp.
	reg.Register(capability.Extension, "imagick", driver.Descriptor{
		Name:         "imagick-alpine",
		RequiredTags: []string{"alpine"},
		Factory: func() driver.Driver {
			return NewExtension("imagick-alpine",
				WithTags("alpine"),
				WithDependencies(imagickDependencies),
				WithDependencies(pkgmgr.DependencySet{pkgmgr.Apk: {"libgomp"}}),
				WithConfigure(Flags("--with-imagick")),
				WithPins(Pin{Below: "7.4", Version: "3.7.0"}),
			)
		},
	})
}

var imagickDependencies = pkgmgr.DependencySet{
	pkgmgr.Apt: {"libmagickwand-dev"},
	pkgmgr.DNF: {"ImageMagick-devel"},
	pkgmgr.Apk: {"imagemagick-dev"},
}

var builtinExtensions = []driver.Descriptor{
	{
		Name: "redis",
		Factory: func() driver.Driver {
			return NewExtension("redis",
				WithConfigure(Flags("--enable-redis")),
				WithPins(
					Pin{Below: "7.0", Version: "4.3.0"},
					Pin{Below: "7.4", Version: "5.3.7"},
				),
			)
		},
	},
	{
		Name: "swoole",
		Factory: func() driver.Driver {
			return NewExtension("swoole",
				WithMinPHP("7.2"),
				FromGitHub("swoole", "swoole-src", "v"),
				WithDependencies(pkgmgr.DependencySet{
					pkgmgr.Apt: {"libssl-dev", "libcurl4-openssl-dev", "libbrotli-dev"},
					pkgmgr.DNF: {"openssl-devel", "libcurl-devel", "brotli-devel", "gcc-c++"},
					pkgmgr.Apk: {"openssl-dev", "curl-dev", "brotli-dev", "g++", "linux-headers"},
				}),
				WithConfigure(Flags("--enable-openssl", "--enable-sockets", "--enable-swoole-curl")),
				WithPins(
					Pin{Below: "8.0", Version: "4.8.13"},
					Pin{Below: "8.1", Version: "5.1.6"},
				),
			)
		},
	},
	{
		Name: "xdebug",
		Factory: func() driver.Driver {
			return NewExtension("xdebug",
				WithMinPHP("7.2"),
				AsZendExtension(),
				WithPins(
					Pin{Below: "8.0", Version: "3.1.6"},
					Pin{Below: "8.1", Version: "3.3.2"},
				),
			)
		},
	},
	{
		Name: "imagick",
		Factory: func() driver.Driver {
			return NewExtension("imagick",
				WithDependencies(imagickDependencies),
				WithConfigure(Flags("--with-imagick")),
				WithPins(Pin{Below: "7.4", Version: "3.7.0"}),
			)
		},
	},
	{
		Name: "mongodb",
		Factory: func() driver.Driver {
			return NewExtension("mongodb",
				WithDependencies(pkgmgr.DependencySet{
					pkgmgr.Apt: {"libssl-dev", "libsasl2-dev"},
					pkgmgr.DNF: {"openssl-devel", "cyrus-sasl-devel"},
					pkgmgr.Apk: {"openssl-dev", "cyrus-sasl-dev"},
				}),
				WithConfigure(Flags("--with-mongodb-ssl=openssl", "--with-mongodb-sasl=cyrus")),
				WithPins(
					Pin{Below: "7.2", Version: "1.9.2"},
					Pin{Below: "7.4", Version: "1.16.2"},
				),
			)
		},
	},
	{
		// The PECL package is pecl_http; the module it builds is http.so.
		Name: "pecl_http",
		Factory: func() driver.Driver {
			return NewExtension("pecl_http",
				WithMinPHP("8.0"),
				WithSharedObject("http.so"),
				WithDependencies(pkgmgr.DependencySet{
					pkgmgr.Apt: {"libcurl4-openssl-dev", "zlib1g-dev", "libicu-dev"},
					pkgmgr.DNF: {"libcurl-devel", "zlib-devel", "libicu-devel"},
					pkgmgr.Apk: {"curl-dev", "zlib-dev", "icu-dev"},
				}),
			)
		},
	},
}
