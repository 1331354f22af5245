package errors

import (
	"testing"
)

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"major only", "8", false},
		{"major minor", "8.2", false},
		{"full", "8.2.10", false},
		{"release candidate", "8.4.0RC1", false},
		{"alpha", "8.4.0alpha2", false},

		{"empty", "", true},
		{"too long", "8.2.1000000000000000000000000000000", true},
		{"path traversal", "../8.2", true},
		{"leading v", "v8.2.10", true},
		{"four parts", "8.2.10.1", true},
		{"whitespace", "8.2 ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidVersion) {
				t.Errorf("ValidateVersion(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidVersion)
			}
		})
	}
}

func TestValidateExtensionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "redis", false},
		{"underscore", "pdo_sqlsrv", false},
		{"digits", "igbinary3", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 80)), true},
		{"slash", "foo/bar", true},
		{"dot", "foo.so", true},
		{"leading digit", "1redis", true},
		{"control char", "re\x01dis", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExtensionName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateExtensionName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"https://www.php.net/distributions/php-8.2.10.tar.gz", false},
		{"http://mirror.local/php/", false},
		{"", true},
		{"ftp://mirror.local/php/", true},
		{"file:///etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
