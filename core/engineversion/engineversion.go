package engineversion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/juju/version/v2"
	"golang.org/x/mod/semver"

	coreerrors "github.com/davidahmann/buildstamp/core/errors"
)

const (
	DefaultTagPrefix = "v"
	defaultTimeout   = 10 * time.Second
)

// Resolver looks up the engine version for a checkout rooted at dir.
type Resolver interface {
	Resolve(ctx context.Context, dir string) (string, error)
}

// GitResolver runs `git describe --tags --abbrev=0` in dir and strips Prefix
// from the nearest reachable tag.
type GitResolver struct {
	Command string
	Prefix  string
	Timeout time.Duration
}

func (r GitResolver) Resolve(ctx context.Context, dir string) (string, error) {
	command := strings.TrimSpace(r.Command)
	if command == "" {
		command = "git"
	}
	if _, err := exec.LookPath(command); err != nil {
		return "", coreerrors.Wrap(fmt.Errorf("locate %s: %w", command, err), coreerrors.CategoryDependencyMissing, "git_missing", "install git or pass --engine-version", false)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", coreerrors.NotFound(fmt.Errorf("engine directory %s does not exist", dir), "engine_dir_not_found")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	commandCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- command is operator configuration and arguments are fixed.
	cmd := exec.CommandContext(commandCtx, command, "describe", "--tags", "--abbrev=0")
	cmd.Dir = dir
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if commandCtx.Err() != nil && ctx.Err() == nil {
		return "", coreerrors.VersionResolution(fmt.Errorf("git describe in %s timed out after %s", dir, timeout), "tag_lookup_timeout")
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", coreerrors.VersionResolution(fmt.Errorf("no tag found in %s: %s", dir, strings.TrimSpace(stderr.String())), "tag_not_found")
		}
		return "", coreerrors.VersionResolution(fmt.Errorf("git describe in %s: %w", dir, err), "tag_lookup_failed")
	}
	return ParseTag(strings.TrimSpace(string(output)), r.Prefix)
}

// ParseTag strips prefix from tag and checks that the remainder is a
// version number such as 250.0.0 or 250.0.0-rc1. The remainder is returned
// unchanged.
func ParseTag(tag string, prefix string) (string, error) {
	if prefix == "" {
		prefix = DefaultTagPrefix
	}
	if tag == "" {
		return "", coreerrors.VersionResolution(fmt.Errorf("no tag found"), "tag_not_found")
	}
	if !strings.HasPrefix(tag, prefix) {
		return "", coreerrors.VersionResolution(fmt.Errorf("tag %q does not start with %q", tag, prefix), "tag_prefix_missing")
	}
	stripped := strings.TrimPrefix(tag, prefix)
	if err := checkVersion(stripped); err != nil {
		return "", coreerrors.VersionResolution(fmt.Errorf("tag %q is not a version: %w", tag, err), "tag_malformed")
	}
	return stripped, nil
}

// Static resolves to a fixed version, for builds that already know it.
type Static string

func (s Static) Resolve(context.Context, string) (string, error) {
	trimmed := strings.TrimSpace(string(s))
	if trimmed == "" {
		return "", coreerrors.VersionResolution(fmt.Errorf("engine version override is empty"), "engine_version_empty")
	}
	if err := checkVersion(trimmed); err != nil {
		return "", coreerrors.VersionResolution(fmt.Errorf("engine version %q is not a version: %w", trimmed, err), "engine_version_malformed")
	}
	return trimmed, nil
}

// checkVersion accepts juju style numbers (250.0.0, 1.2-beta3) and semver
// without its leading v (1.2.3-rc.1+build, 1.2).
func checkVersion(value string) error {
	_, err := version.Parse(value)
	if err == nil || semver.IsValid("v"+value) {
		return nil
	}
	return err
}
