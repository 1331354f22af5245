package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// versionRegex matches PHP release versions: "8", "8.2" or "8.2.10", optionally
// followed by a pre-release suffix such as "RC1" or "alpha2".
var versionRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]+){0,2}((alpha|beta|RC)[0-9]+)?$`)

// ValidateVersion validates a PHP or extension version string.
// It rejects anything that could be used for path traversal once the version
// is joined into an install prefix.
func ValidateVersion(version string) error {
	if version == "" {
		return New(ErrCodeInvalidVersion, "version cannot be empty")
	}
	if len(version) > 32 {
		return New(ErrCodeInvalidVersion, "version too long (max 32 characters)")
	}
	if !versionRegex.MatchString(version) {
		return New(ErrCodeInvalidVersion, "invalid version: %q", version)
	}
	return nil
}

// extensionNameRegex matches PECL package names.
var extensionNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidateExtensionName validates an extension name for safety and correctness.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path separators or traversal sequences
//   - Maximum length of 64 characters
func ValidateExtensionName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidExtension, "extension name cannot be empty")
	}
	if len(name) > 64 {
		return New(ErrCodeInvalidExtension, "extension name too long (max 64 characters)")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidExtension, "extension name contains invalid control characters")
		}
	}
	if strings.ContainsAny(name, `/\.`) {
		return New(ErrCodeInvalidExtension, "extension name contains invalid characters: %q", name)
	}
	if !extensionNameRegex.MatchString(name) {
		return New(ErrCodeInvalidExtension, "invalid extension name: %q", name)
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme: %q", rawURL)
	}

	return nil
}
