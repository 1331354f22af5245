package capability

import (
	"slices"
	"testing"

	"github.com/matzehuels/phpup/pkg/errors"
)

func TestVersionTag(t *testing.T) {
	tests := []struct {
		name string
		cap  Capability
		want string
	}{
		{"runtime", NewRuntime("8.2.10"), "php82"},
		{"runtime major minor", NewRuntime("7.4"), "php74"},
		{"extension uses runtime", NewExtension("redis", "6.0.2", "8.3.1"), "php83"},
		{"major only", NewRuntime("8"), ""},
		{"release candidate", NewRuntime("8.4.0RC1"), "php84"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cap.VersionTag(); got != tt.want {
				t.Errorf("VersionTag() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistryName(t *testing.T) {
	if got := (Capability{Kind: Runtime}).RegistryName(); got != RuntimeName {
		t.Errorf("empty runtime name = %q, want %q", got, RuntimeName)
	}
	if got := NewExtension("Redis", "", "8.2.10").RegistryName(); got != "redis" {
		t.Errorf("extension name = %q, want %q", got, "redis")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cap  Capability
		code errors.Code
	}{
		{"valid runtime", NewRuntime("8.2.10"), ""},
		{"valid extension latest", NewExtension("redis", "", "8.2.10"), ""},
		{"bad runtime version", NewRuntime("../etc"), errors.ErrCodeInvalidVersion},
		{"bad extension name", NewExtension("../x", "1.0.0", "8.2.10"), errors.ErrCodeInvalidExtension},
		{"extension without runtime", NewExtension("redis", "6.0.2", ""), errors.ErrCodeInvalidVersion},
		{"unknown kind", Capability{Kind: Kind(9), Version: "8.2.10"}, errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cap.Validate()
			if tt.code == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.code) {
				t.Fatalf("Validate() error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"8.2.10", "8.2.9", 1},
		{"8.0.0", "8.0", 0},
		{"7.4.33", "8.0.0", -1},
		{"8.4.0RC1", "8.4.0", -1},
		{"8.4.0alpha1", "8.4.0RC1", -1},
	}

	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}

	if !AtLeast("8.1.0", "8.0") {
		t.Error("AtLeast(8.1.0, 8.0) = false, want true")
	}
}

func TestSort(t *testing.T) {
	versions := []string{"8.2.10", "7.4.33", "8.2.9", "8.3.0", "8.3.0RC2"}
	Sort(versions)
	want := []string{"7.4.33", "8.2.9", "8.2.10", "8.3.0RC2", "8.3.0"}
	if !slices.Equal(versions, want) {
		t.Errorf("Sort() = %v, want %v", versions, want)
	}
}

func TestMajorMinorAndPartial(t *testing.T) {
	if got := MajorMinor("8.2.10"); got != "8.2" {
		t.Errorf("MajorMinor() = %q, want 8.2", got)
	}
	if !IsPartial("8.2") || IsPartial("8.2.10") {
		t.Error("IsPartial() misclassified versions")
	}
}

func TestString(t *testing.T) {
	if got := NewRuntime("8.2.10").String(); got != "php@8.2.10" {
		t.Errorf("String() = %q", got)
	}
	if got := NewExtension("redis", "", "8.2.10").String(); got != "redis@latest (php 8.2.10)" {
		t.Errorf("String() = %q", got)
	}
}
