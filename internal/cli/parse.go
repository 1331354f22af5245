package cli

import (
	"strings"
	"unicode"

	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/errors"
)

// parseTarget turns a command argument into a capability.
//
// Accepted forms:
//
//	8.2 | 8.2.10 | php@8.2.10 | php   runtime (bare "php" leaves the version empty)
//	redis | redis@6.0.2              extension built against the --php runtime
func parseTarget(arg, php string) (capability.Capability, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return capability.Capability{}, errors.New(errors.ErrCodeInvalidInput, "empty target")
	}
	if unicode.IsDigit(rune(arg[0])) {
		return capability.NewRuntime(arg), nil
	}

	name, version, _ := strings.Cut(arg, "@")
	name = strings.ToLower(name)
	if name == capability.RuntimeName {
		return capability.NewRuntime(version), nil
	}
	if php == "" {
		return capability.Capability{}, errors.New(errors.ErrCodeInvalidInput,
			"extension %s needs a runtime; pass --php <version>", name)
	}
	return capability.NewExtension(name, version, php), nil
}
