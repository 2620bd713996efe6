package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/buildstamp/core/archive"
	"github.com/davidahmann/buildstamp/core/engineversion"
	"github.com/davidahmann/buildstamp/core/projectconfig"
)

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

type Options struct {
	WorkDir         string
	Config          projectconfig.Config
	ProducerVersion string
	// GitCommand defaults to "git".
	GitCommand string
	// Resolver overrides the git tag lookup, for builds that pin the engine version.
	Resolver engineversion.Resolver
}

type Result struct {
	SchemaID        string   `json:"schema_id"`
	SchemaVersion   string   `json:"schema_version"`
	CreatedAt       string   `json:"created_at"`
	ProducerVersion string   `json:"producer_version"`
	Status          string   `json:"status"`
	NonFixable      bool     `json:"non_fixable"`
	Summary         string   `json:"summary"`
	FixCommands     []string `json:"fix_commands"`
	Checks          []Check  `json:"checks"`
}

type Check struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	FixCommand string `json:"fix_command,omitempty"`
	NonFixable bool   `json:"non_fixable,omitempty"`
}

func Run(ctx context.Context, opts Options) Result {
	workDir := strings.TrimSpace(opts.WorkDir)
	if workDir == "" {
		workDir = "."
	}
	producerVersion := strings.TrimSpace(opts.ProducerVersion)
	if producerVersion == "" {
		producerVersion = "0.0.0-dev"
	}
	gitCommand := strings.TrimSpace(opts.GitCommand)
	if gitCommand == "" {
		gitCommand = "git"
	}
	configuration := opts.Config
	resolve := func(path string) string {
		if filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(workDir, path)
	}

	resolver := opts.Resolver
	if resolver == nil {
		timeout, _ := configuration.TagTimeoutDuration()
		resolver = engineversion.GitResolver{Command: gitCommand, Prefix: configuration.TagPrefix, Timeout: timeout}
	}
	engineDir := resolve(configuration.EngineDir)

	checks := []Check{
		checkConfig(configuration),
		checkGitBinary(gitCommand, opts.Resolver != nil),
		checkEngineDir(engineDir),
		checkEngineTag(ctx, resolver, engineDir),
		checkPrimaryArtifact(resolve(configuration.PrimaryArtifactPath())),
		checkReleaseDirWritable(resolve(configuration.ReleaseDir)),
	}
	for _, target := range configuration.TargetPaths() {
		checks = append(checks, checkTarget(resolve(target), configuration.EntryName))
	}

	failed := 0
	warned := 0
	nonFixable := false
	fixCommands := make([]string, 0, len(checks))
	seenFixes := map[string]struct{}{}
	for _, check := range checks {
		switch check.Status {
		case statusFail:
			failed++
		case statusWarn:
			warned++
		}
		if check.NonFixable {
			nonFixable = true
		}
		if check.FixCommand != "" {
			if _, ok := seenFixes[check.FixCommand]; !ok {
				seenFixes[check.FixCommand] = struct{}{}
				fixCommands = append(fixCommands, check.FixCommand)
			}
		}
	}

	status := statusPass
	if failed > 0 {
		status = statusFail
	} else if warned > 0 {
		status = statusWarn
	}

	sort.Strings(fixCommands)
	summary := fmt.Sprintf("doctor: status=%s failed=%d warned=%d non_fixable=%t", status, failed, warned, nonFixable)

	return Result{
		SchemaID:        "buildstamp.doctor.result",
		SchemaVersion:   "1.0.0",
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		ProducerVersion: producerVersion,
		Status:          status,
		NonFixable:      nonFixable,
		Summary:         summary,
		FixCommands:     fixCommands,
		Checks:          checks,
	}
}

func checkConfig(configuration projectconfig.Config) Check {
	if err := configuration.Validate(); err != nil {
		return Check{
			Name:       "config",
			Status:     statusFail,
			Message:    fmt.Sprintf("config invalid: %v", err),
			FixCommand: "$EDITOR " + projectconfig.DefaultPath,
		}
	}
	return Check{Name: "config", Status: statusPass, Message: "config is valid"}
}

func checkGitBinary(command string, pinned bool) Check {
	path, err := exec.LookPath(command)
	if err != nil {
		status := statusFail
		if pinned {
			status = statusWarn
		}
		return Check{
			Name:    "git_binary",
			Status:  status,
			Message: fmt.Sprintf("%s not found on PATH", command),
		}
	}
	return Check{Name: "git_binary", Status: statusPass, Message: fmt.Sprintf("git found at %s", path)}
}

func checkEngineDir(engineDir string) Check {
	info, err := os.Stat(engineDir)
	if err != nil {
		return Check{
			Name:       "engine_dir",
			Status:     statusFail,
			Message:    fmt.Sprintf("engine directory not accessible: %v", err),
			FixCommand: fmt.Sprintf("git submodule update --init %s", shellQuote(filepath.Base(engineDir))),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:       "engine_dir",
			Status:     statusFail,
			Message:    "engine path is not a directory",
			NonFixable: true,
		}
	}
	return Check{Name: "engine_dir", Status: statusPass, Message: "engine directory exists"}
}

func checkEngineTag(ctx context.Context, resolver engineversion.Resolver, engineDir string) Check {
	engineVersion, err := resolver.Resolve(ctx, engineDir)
	if err != nil {
		return Check{
			Name:       "engine_tag",
			Status:     statusFail,
			Message:    fmt.Sprintf("engine version not resolvable: %v", err),
			FixCommand: fmt.Sprintf("git -C %s fetch --tags", shellQuote(engineDir)),
		}
	}
	return Check{Name: "engine_tag", Status: statusPass, Message: fmt.Sprintf("engine version %s", engineVersion)}
}

func checkPrimaryArtifact(path string) Check {
	opened, err := archive.Open(path, archive.ReadOptions{})
	if err != nil {
		return Check{
			Name:    "primary_artifact",
			Status:  statusFail,
			Message: fmt.Sprintf("primary artifact unusable: %v", err),
		}
	}
	count := len(opened.Names())
	_ = opened.Close()
	return Check{Name: "primary_artifact", Status: statusPass, Message: fmt.Sprintf("primary artifact has %d members", count)}
}

func checkTarget(path, entryName string) Check {
	name := "target:" + filepath.Base(path)
	opened, err := archive.Open(path, archive.ReadOptions{})
	if err != nil {
		return Check{Name: name, Status: statusFail, Message: fmt.Sprintf("target unusable: %v", err)}
	}
	existing := opened.Count(entryName)
	_ = opened.Close()
	if existing > 0 {
		return Check{
			Name:       name,
			Status:     statusWarn,
			Message:    fmt.Sprintf("target already contains %s; inject will fail unless --replace is set", entryName),
			FixCommand: "buildstamp inject --replace",
		}
	}
	return Check{Name: name, Status: statusPass, Message: "target is ready for injection"}
}

func checkReleaseDirWritable(releaseDir string) Check {
	info, err := os.Stat(releaseDir)
	if err != nil {
		return Check{
			Name:       "release_dir",
			Status:     statusFail,
			Message:    fmt.Sprintf("release directory not accessible: %v", err),
			FixCommand: fmt.Sprintf("mkdir -p %s", shellQuote(releaseDir)),
		}
	}
	if !info.IsDir() {
		return Check{Name: "release_dir", Status: statusFail, Message: "release path is not a directory"}
	}
	testPath := filepath.Join(releaseDir, ".buildstamp-doctor-writecheck")
	if err := os.WriteFile(testPath, []byte("ok"), 0o600); err != nil {
		return Check{
			Name:       "release_dir",
			Status:     statusFail,
			Message:    fmt.Sprintf("release directory not writable: %v", err),
			FixCommand: fmt.Sprintf("chmod u+w %s", shellQuote(releaseDir)),
		}
	}
	_ = os.Remove(testPath)
	return Check{Name: "release_dir", Status: statusPass, Message: "release directory is writable"}
}

func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
