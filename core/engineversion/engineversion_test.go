package engineversion

import (
	"context"
	"path/filepath"
	"testing"

	coreerrors "github.com/davidahmann/buildstamp/core/errors"
	"github.com/davidahmann/buildstamp/internal/testutil"
)

func TestParseTag(t *testing.T) {
	got, err := ParseTag("v250.0.0", "v")
	if err != nil {
		t.Fatalf("parse tag: %v", err)
	}
	if got != "250.0.0" {
		t.Fatalf("unexpected version: %s", got)
	}
	if got, err := ParseTag("v1.2.3", ""); err != nil || got != "1.2.3" {
		t.Fatalf("default prefix: got=%q err=%v", got, err)
	}
	if got, err := ParseTag("release-7.1.0", "release-"); err != nil || got != "7.1.0" {
		t.Fatalf("custom prefix: got=%q err=%v", got, err)
	}
}

func TestParseTagAcceptsSemverTags(t *testing.T) {
	for tag, want := range map[string]string{
		"v250.0.0-rc1":   "250.0.0-rc1",
		"v1.2.3-beta.1":  "1.2.3-beta.1",
		"v0.1.0+build.7": "0.1.0+build.7",
		"v1.2":           "1.2",
		"v2.9-beta3":     "2.9-beta3",
	} {
		got, err := ParseTag(tag, "v")
		if err != nil {
			t.Fatalf("tag %q: %v", tag, err)
		}
		if got != want {
			t.Fatalf("tag %q: expected %q, got %q", tag, want, got)
		}
	}
}

func TestParseTagFailures(t *testing.T) {
	for _, tag := range []string{"", "250.0.0", "vfoo", "Version1.0.0", "v1.2.3-", "v1.2.3.."} {
		_, err := ParseTag(tag, "v")
		if !coreerrors.Is(err, coreerrors.CategoryVersionResolution) {
			t.Fatalf("tag %q: expected version_resolution, got %v", tag, err)
		}
	}
}

func TestStaticResolver(t *testing.T) {
	got, err := Static(" 250.0.0 ").Resolve(context.Background(), "ignored")
	if err != nil {
		t.Fatalf("static resolve: %v", err)
	}
	if got != "250.0.0" {
		t.Fatalf("unexpected static version: %s", got)
	}
	if _, err := Static("").Resolve(context.Background(), ""); !coreerrors.Is(err, coreerrors.CategoryVersionResolution) {
		t.Fatalf("expected version_resolution for empty override, got %v", err)
	}
	if got, err := Static("250.0.0-rc.2").Resolve(context.Background(), ""); err != nil || got != "250.0.0-rc.2" {
		t.Fatalf("prerelease override: got=%q err=%v", got, err)
	}
	if _, err := Static("v250").Resolve(context.Background(), ""); !coreerrors.Is(err, coreerrors.CategoryVersionResolution) {
		t.Fatalf("expected version_resolution for malformed override, got %v", err)
	}
}

func TestGitResolverReadsNearestTag(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "RobustToolbox")
	testutil.InitTaggedRepo(t, dir, "v250.0.0")

	got, err := GitResolver{Prefix: "v"}.Resolve(context.Background(), dir)
	if err != nil {
		t.Fatalf("git resolve: %v", err)
	}
	if got != "250.0.0" {
		t.Fatalf("unexpected engine version: %s", got)
	}
}

func TestGitResolverNoTag(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "RobustToolbox")
	testutil.InitTaggedRepo(t, dir, "")

	_, err := GitResolver{}.Resolve(context.Background(), dir)
	if !coreerrors.Is(err, coreerrors.CategoryVersionResolution) {
		t.Fatalf("expected version_resolution, got %v (%s)", err, coreerrors.CategoryOf(err))
	}
}

func TestGitResolverBadPrefix(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "RobustToolbox")
	testutil.InitTaggedRepo(t, dir, "250.0.0")

	_, err := GitResolver{Prefix: "v"}.Resolve(context.Background(), dir)
	if coreerrors.CodeOf(err) != "tag_prefix_missing" {
		t.Fatalf("expected tag_prefix_missing, got %v (%s)", err, coreerrors.CodeOf(err))
	}
}

func TestGitResolverMissingDir(t *testing.T) {
	testutil.RequireGit(t)
	_, err := GitResolver{}.Resolve(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !coreerrors.Is(err, coreerrors.CategoryNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestGitResolverMissingCommand(t *testing.T) {
	_, err := GitResolver{Command: "buildstamp-no-such-git"}.Resolve(context.Background(), t.TempDir())
	if !coreerrors.Is(err, coreerrors.CategoryDependencyMissing) {
		t.Fatalf("expected dependency_missing, got %v", err)
	}
}
