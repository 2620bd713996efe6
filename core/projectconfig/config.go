package projectconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/davidahmann/buildstamp/core/archive"
)

const DefaultPath = ".buildstamp/config.yaml"

type Config struct {
	ForkID          string       `yaml:"fork_id"`
	ReleaseDir      string       `yaml:"release_dir"`
	PrimaryArtifact string       `yaml:"primary_artifact"`
	Targets         []string     `yaml:"targets"`
	EntryName       string       `yaml:"entry_name"`
	EngineDir       string       `yaml:"engine_dir"`
	TagPrefix       string       `yaml:"tag_prefix"`
	TagTimeout      string       `yaml:"tag_timeout"`
	DuplicatePolicy string       `yaml:"duplicate_policy"`
	ExpandTemplates bool         `yaml:"expand_templates"`
	Workers         int          `yaml:"workers"`
	URLs            URLTemplates `yaml:"urls"`
	Log             LogDefaults  `yaml:"log"`
}

type URLTemplates struct {
	Download         string `yaml:"download"`
	Manifest         string `yaml:"manifest"`
	ManifestDownload string `yaml:"manifest_download"`
}

type LogDefaults struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults mirrors the layout of a Robust release checkout.
func Defaults() Config {
	return Config{
		ForkID:          "dh_test",
		ReleaseDir:      "release",
		PrimaryArtifact: "SS14.Client.zip",
		Targets:         []string{"SS14.Server_linux-x64.zip", "SS14.Server_win-x64.zip"},
		EntryName:       "build.json",
		EngineDir:       "RobustToolbox",
		TagPrefix:       "v",
		TagTimeout:      "10s",
		DuplicatePolicy: string(archive.DuplicateReject),
		URLs: URLTemplates{
			Download:         "http://dark-haven.xyz:8080/builds/{FORK_VERSION}/SS14.Client.zip",
			Manifest:         "http://dark-haven.xyz:8080/version/{FORK_VERSION}/manifest",
			ManifestDownload: "http://dark-haven.xyz:8080/version/{FORK_VERSION}/download",
		},
		Log: LogDefaults{Level: "info", Format: "console"},
	}
}

// Load reads path over Defaults(). Keys absent from the file keep their
// default values.
func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Defaults(), nil
		}
		return Config{}, fmt.Errorf("read project config: %w", err)
	}
	configuration := Defaults()
	if len(strings.TrimSpace(string(content))) == 0 {
		return configuration, nil
	}

	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse project config: %w", err)
	}
	configuration.normalize()
	return configuration, nil
}

func (configuration *Config) normalize() {
	configuration.ForkID = strings.TrimSpace(configuration.ForkID)
	configuration.ReleaseDir = strings.TrimSpace(configuration.ReleaseDir)
	configuration.PrimaryArtifact = strings.TrimSpace(configuration.PrimaryArtifact)
	targets := make([]string, 0, len(configuration.Targets))
	for _, target := range configuration.Targets {
		if trimmed := strings.TrimSpace(target); trimmed != "" {
			targets = append(targets, trimmed)
		}
	}
	configuration.Targets = targets
	configuration.EntryName = strings.TrimSpace(configuration.EntryName)
	configuration.EngineDir = strings.TrimSpace(configuration.EngineDir)
	configuration.TagPrefix = strings.TrimSpace(configuration.TagPrefix)
	configuration.TagTimeout = strings.TrimSpace(configuration.TagTimeout)
	configuration.DuplicatePolicy = strings.ToLower(strings.TrimSpace(configuration.DuplicatePolicy))
	configuration.URLs.Download = strings.TrimSpace(configuration.URLs.Download)
	configuration.URLs.Manifest = strings.TrimSpace(configuration.URLs.Manifest)
	configuration.URLs.ManifestDownload = strings.TrimSpace(configuration.URLs.ManifestDownload)
	configuration.Log.Level = strings.ToLower(strings.TrimSpace(configuration.Log.Level))
	configuration.Log.Format = strings.ToLower(strings.TrimSpace(configuration.Log.Format))
}

func (configuration Config) Validate() error {
	if configuration.PrimaryArtifact == "" {
		return fmt.Errorf("primary_artifact is required")
	}
	if len(configuration.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	primary := filepath.Clean(configuration.PrimaryArtifactPath())
	seen := map[string]struct{}{}
	for _, target := range configuration.TargetPaths() {
		cleaned := filepath.Clean(target)
		if cleaned == primary {
			return fmt.Errorf("target %s must differ from primary_artifact", target)
		}
		if _, exists := seen[cleaned]; exists {
			return fmt.Errorf("target %s listed more than once", target)
		}
		seen[cleaned] = struct{}{}
	}
	if configuration.EntryName == "" || archive.IsDirectory(configuration.EntryName) {
		return fmt.Errorf("entry_name must name a file")
	}
	if _, err := archive.ParseDuplicatePolicy(configuration.DuplicatePolicy); err != nil {
		return err
	}
	if _, err := configuration.TagTimeoutDuration(); err != nil {
		return err
	}
	if configuration.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if configuration.URLs.Download == "" || configuration.URLs.Manifest == "" || configuration.URLs.ManifestDownload == "" {
		return fmt.Errorf("urls.download, urls.manifest and urls.manifest_download are required")
	}
	switch configuration.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("unsupported log.format %q (expected console|json)", configuration.Log.Format)
	}
	return nil
}

func (configuration Config) TagTimeoutDuration() (time.Duration, error) {
	if configuration.TagTimeout == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(configuration.TagTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse tag_timeout: %w", err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("tag_timeout must be >= 0")
	}
	return parsed, nil
}

func (configuration Config) PrimaryArtifactPath() string {
	return configuration.releasePath(configuration.PrimaryArtifact)
}

func (configuration Config) TargetPaths() []string {
	paths := make([]string, len(configuration.Targets))
	for index, target := range configuration.Targets {
		paths[index] = configuration.releasePath(target)
	}
	return paths
}

func (configuration Config) releasePath(name string) string {
	if filepath.IsAbs(name) || configuration.ReleaseDir == "" {
		return name
	}
	return filepath.Join(configuration.ReleaseDir, name)
}
