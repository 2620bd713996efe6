package doctor

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/buildstamp/core/engineversion"
	"github.com/davidahmann/buildstamp/core/projectconfig"
	"github.com/davidahmann/buildstamp/internal/testutil"
)

func writeWorkspace(t *testing.T, withRecord bool) string {
	t.Helper()
	workDir := t.TempDir()
	configuration := projectconfig.Defaults()
	testutil.WriteZip(t, filepath.Join(workDir, configuration.PrimaryArtifactPath()), []testutil.ZipFile{
		{Path: "a.txt", Data: []byte("1")},
	})
	for _, target := range configuration.TargetPaths() {
		files := []testutil.ZipFile{{Path: "Robust.Server", Data: []byte("binary")}}
		if withRecord {
			files = append(files, testutil.ZipFile{Path: "build.json", Data: []byte("{}")})
		}
		testutil.WriteZip(t, filepath.Join(workDir, target), files)
	}
	return workDir
}

func TestRunPassesWithTaggedEngine(t *testing.T) {
	workDir := writeWorkspace(t, false)
	testutil.InitTaggedRepo(t, filepath.Join(workDir, "RobustToolbox"), "v250.0.0")

	result := Run(context.Background(), Options{
		WorkDir:         workDir,
		Config:          projectconfig.Defaults(),
		ProducerVersion: "test",
	})
	if result.Status != statusPass {
		t.Fatalf("expected pass, got %s: %+v", result.Status, result.Checks)
	}
	if len(result.Checks) != 8 {
		t.Fatalf("unexpected checks count: %d", len(result.Checks))
	}
	if !checkStatus(result.Checks, "engine_tag", statusPass) {
		t.Fatalf("expected engine_tag pass")
	}
	if result.SchemaID != "buildstamp.doctor.result" || result.ProducerVersion != "test" {
		t.Fatalf("unexpected result envelope: %+v", result)
	}
}

func TestRunFailsWithoutEngineOrArtifacts(t *testing.T) {
	workDir := t.TempDir()
	result := Run(context.Background(), Options{WorkDir: workDir, Config: projectconfig.Defaults()})

	if result.Status != statusFail {
		t.Fatalf("expected fail status, got: %s", result.Status)
	}
	for _, name := range []string{"engine_dir", "engine_tag", "primary_artifact", "release_dir", "target:SS14.Server_linux-x64.zip"} {
		if !checkStatus(result.Checks, name, statusFail) {
			t.Fatalf("expected %s fail check: %+v", name, result.Checks)
		}
	}
	if len(result.FixCommands) == 0 {
		t.Fatalf("expected fix commands")
	}
	if !strings.Contains(result.Summary, "status=fail") {
		t.Fatalf("unexpected summary: %s", result.Summary)
	}
}

func TestRunWarnsOnExistingRecord(t *testing.T) {
	workDir := writeWorkspace(t, true)
	testutil.WriteFile(t, filepath.Join(workDir, "RobustToolbox", "README"), []byte("engine\n"))

	result := Run(context.Background(), Options{
		WorkDir:  workDir,
		Config:   projectconfig.Defaults(),
		Resolver: engineversion.Static("250.0.0"),
	})
	if result.Status != statusWarn {
		t.Fatalf("expected warn status, got %s: %+v", result.Status, result.Checks)
	}
	if !checkStatus(result.Checks, "target:SS14.Server_win-x64.zip", statusWarn) {
		t.Fatalf("expected target warn: %+v", result.Checks)
	}
	if len(result.FixCommands) != 1 || result.FixCommands[0] != "buildstamp inject --replace" {
		t.Fatalf("expected deduplicated replace fix: %v", result.FixCommands)
	}
}

func TestRunReportsInvalidConfigAndMissingGit(t *testing.T) {
	workDir := writeWorkspace(t, false)
	configuration := projectconfig.Defaults()
	configuration.DuplicatePolicy = "append"

	result := Run(context.Background(), Options{
		WorkDir:    workDir,
		Config:     configuration,
		GitCommand: "buildstamp-no-such-git",
	})
	if !checkStatus(result.Checks, "config", statusFail) {
		t.Fatalf("expected config fail: %+v", result.Checks)
	}
	if !checkStatus(result.Checks, "git_binary", statusFail) {
		t.Fatalf("expected git_binary fail: %+v", result.Checks)
	}

	pinned := Run(context.Background(), Options{
		WorkDir:    workDir,
		Config:     projectconfig.Defaults(),
		GitCommand: "buildstamp-no-such-git",
		Resolver:   engineversion.Static("250.0.0"),
	})
	if !checkStatus(pinned.Checks, "git_binary", statusWarn) {
		t.Fatalf("expected git_binary warn with pinned version: %+v", pinned.Checks)
	}
}

func TestShellQuote(t *testing.T) {
	if shellQuote("") != "''" {
		t.Fatalf("unexpected empty quote")
	}
	if got := shellQuote("it's"); got != `'it'\''s'` {
		t.Fatalf("unexpected quote: %s", got)
	}
}

func checkStatus(checks []Check, name string, status string) bool {
	for _, check := range checks {
		if check.Name == name && check.Status == status {
			return true
		}
	}
	return false
}
