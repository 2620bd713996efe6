package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/davidahmann/buildstamp/core/archive"
	"github.com/davidahmann/buildstamp/core/buildinfo"
	"github.com/davidahmann/buildstamp/core/engineversion"
	coreerrors "github.com/davidahmann/buildstamp/core/errors"
	"github.com/davidahmann/buildstamp/core/fsx"
	"github.com/davidahmann/buildstamp/core/pipeline"
	"github.com/davidahmann/buildstamp/core/projectconfig"
)

const (
	envVersion = "BUILDSTAMP_VERSION"
	envGitSHA  = "GITHUB_SHA"
	envForkID  = "BUILDSTAMP_FORK_ID"
)

// artifactFlags are the path overrides shared by inject and verify.
type artifactFlags struct {
	client  string
	targets []string
}

func (f *artifactFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.client, "client", "", "Primary artifact to describe (overrides config)")
	cmd.Flags().StringArrayVar(&f.targets, "target", nil, "Target archive; repeatable (overrides config)")
}

func (f *artifactFlags) apply(configuration *projectconfig.Config) error {
	if f.client != "" {
		absolute, err := cliPath("--client", f.client)
		if err != nil {
			return err
		}
		configuration.PrimaryArtifact = absolute
	}
	if len(f.targets) > 0 {
		targets := make([]string, 0, len(f.targets))
		for _, target := range f.targets {
			absolute, err := cliPath("--target", target)
			if err != nil {
				return err
			}
			targets = append(targets, absolute)
		}
		configuration.Targets = targets
	}
	return nil
}

// cliPath validates a path given on the command line and makes it absolute so
// release_dir is not prepended to it.
func cliPath(flag, value string) (string, error) {
	cleaned, err := fsx.ValidateLocalOrAbsolutePath(value)
	if err != nil {
		return "", coreerrors.InvalidInput(fmt.Errorf("%s: %w", flag, err), "path_invalid")
	}
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", coreerrors.InvalidInput(fmt.Errorf("%s: %w", flag, err), "path_invalid")
	}
	return absolute, nil
}

func newInjectCommand(state *cli) *cobra.Command {
	var (
		artifacts       artifactFlags
		buildVersion    string
		forkID          string
		engineVersion   string
		engineDir       string
		replace         bool
		expandTemplates bool
		workers         int
		manifestOut     string
		recordOut       string
	)
	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Hash the client archive and add build.json to every target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configuration, err := state.loadConfig()
			if err != nil {
				return state.finish(cmd, nil, err, nil)
			}
			if err := artifacts.apply(&configuration); err != nil {
				return state.finish(cmd, nil, err, nil)
			}
			if replace {
				configuration.DuplicatePolicy = string(archive.DuplicateReplace)
			}
			if expandTemplates {
				configuration.ExpandTemplates = true
			}
			if cmd.Flags().Changed("workers") {
				configuration.Workers = workers
			}
			if engineDir != "" {
				configuration.EngineDir = engineDir
			}
			for _, out := range []*string{&manifestOut, &recordOut} {
				if *out == "" {
					continue
				}
				if *out, err = cliPath("output", *out); err != nil {
					return state.finish(cmd, nil, err, nil)
				}
			}
			if err := validateConfig(configuration); err != nil {
				return state.finish(cmd, nil, err, nil)
			}
			logger, err := state.logger(configuration)
			if err != nil {
				return state.finish(cmd, nil, err, nil)
			}

			policy, _ := archive.ParseDuplicatePolicy(configuration.DuplicatePolicy)
			tagTimeout, _ := configuration.TagTimeoutDuration()
			var resolver engineversion.Resolver = engineversion.GitResolver{Prefix: configuration.TagPrefix, Timeout: tagTimeout}
			if engineVersion != "" {
				resolver = engineversion.Static(engineVersion)
			}

			result, err := pipeline.Run(cmd.Context(), pipeline.Options{
				PrimaryArtifact: configuration.PrimaryArtifactPath(),
				Targets:         configuration.TargetPaths(),
				EntryName:       configuration.EntryName,
				EngineDir:       configuration.EngineDir,
				Version:         firstNonEmpty(buildVersion, "", envVersion, envGitSHA),
				ForkID:          firstNonEmpty(forkID, configuration.ForkID, envForkID),
				Resolver:        resolver,
				Templates: buildinfo.Templates{
					Download:         configuration.URLs.Download,
					Manifest:         configuration.URLs.Manifest,
					ManifestDownload: configuration.URLs.ManifestDownload,
				},
				ExpandTemplates: configuration.ExpandTemplates,
				Workers:         configuration.Workers,
				Inject: archive.InjectOptions{
					Policy:      policy,
					Concurrency: configuration.Workers,
				},
				ManifestOut: manifestOut,
				RecordOut:   recordOut,
				Logger:      logger,
			})
			if err != nil {
				return state.finish(cmd, nil, err, nil)
			}
			return state.finish(cmd, result, nil, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "manifest_hash=%s entries=%d\n", result.ManifestHash, result.Entries)
				for _, target := range result.Targets {
					_, _ = fmt.Fprintf(w, "injected %s into %s (entries=%d replaced=%d)\n", target.EntryName, target.Path, target.EntriesAfter, target.Replaced)
				}
				for _, published := range []string{result.ManifestOut, result.RecordOut} {
					if published != "" {
						_, _ = fmt.Fprintf(w, "wrote %s\n", published)
					}
				}
			})
		},
	}
	artifacts.register(cmd)
	cmd.Flags().StringVar(&buildVersion, "version", "", "Build version (default $"+envVersion+", then $"+envGitSHA+")")
	cmd.Flags().StringVar(&forkID, "fork-id", "", "Fork identifier (default $"+envForkID+", then config)")
	cmd.Flags().StringVar(&engineVersion, "engine-version", "", "Engine version; skips the git tag lookup")
	cmd.Flags().StringVar(&engineDir, "engine-dir", "", "Engine checkout to read the tag from (overrides config)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace an existing build.json instead of failing")
	cmd.Flags().BoolVar(&expandTemplates, "expand-templates", false, "Substitute {FORK_VERSION} and {FORK_ID} in URLs")
	cmd.Flags().IntVar(&workers, "workers", 0, "Hashing and injection concurrency (0 = NumCPU)")
	cmd.Flags().StringVar(&manifestOut, "manifest-out", "", "Also write the manifest text to this file")
	cmd.Flags().StringVar(&recordOut, "record-out", "", "Also write build.json to this file")
	return cmd
}
