package version

import (
	"strings"
	"testing"
)

func TestShortCommit(t *testing.T) {
	t.Parallel()
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("shortCommit(abc) = %q", got)
	}
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("shortCommit = %q, want 0123456789ab", got)
	}
}

func TestResolveFillsRuntimeFields(t *testing.T) {
	t.Parallel()
	info := Resolve()
	if info.Version == "" {
		t.Fatal("expected a version")
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Fatalf("unexpected go version %q", info.GoVersion)
	}
	if !strings.Contains(info.Platform, "/") {
		t.Fatalf("unexpected platform %q", info.Platform)
	}
}

func TestFeatureStringNeverEmpty(t *testing.T) {
	t.Parallel()
	if FeatureString() == "" {
		t.Fatal("FeatureString returned empty string")
	}
}
