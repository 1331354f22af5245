// Package buildinfo carries version information injected at link time:
//
//	go build -ldflags "-X github.com/matzehuels/phpup/pkg/buildinfo.Version=v0.3.0 \
//	    -X github.com/matzehuels/phpup/pkg/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	    -X github.com/matzehuels/phpup/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/phpup
package buildinfo

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent is sent with every outgoing request.
func UserAgent() string {
	return fmt.Sprintf("phpup/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} %s\ncommit: %s\nbuilt: %s\ngo: %s\n", Version, Commit, Date, runtime.Version())
}
