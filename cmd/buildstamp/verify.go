package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/davidahmann/buildstamp/core/archive"
	"github.com/davidahmann/buildstamp/core/pipeline"
)

func archiveReadOptions() archive.ReadOptions {
	return archive.ReadOptions{MaxEntryBytes: archive.DefaultMaxEntryBytes}
}

func newVerifyCommand(state *cli) *cobra.Command {
	var artifacts artifactFlags
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every target's build.json matches the client archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configuration, err := state.loadConfig()
			if err != nil {
				return state.finish(cmd, nil, err, nil)
			}
			if err := artifacts.apply(&configuration); err != nil {
				return state.finish(cmd, nil, err, nil)
			}
			if err := validateConfig(configuration); err != nil {
				return state.finish(cmd, nil, err, nil)
			}
			logger, err := state.logger(configuration)
			if err != nil {
				return state.finish(cmd, nil, err, nil)
			}

			result, err := pipeline.Verify(cmd.Context(), pipeline.VerifyOptions{
				PrimaryArtifact: configuration.PrimaryArtifactPath(),
				Targets:         configuration.TargetPaths(),
				EntryName:       configuration.EntryName,
				Workers:         configuration.Workers,
				Read:            archiveReadOptions(),
				Logger:          logger,
			})
			if err != nil && len(result.Targets) == 0 {
				return state.finish(cmd, nil, err, nil)
			}
			return state.finish(cmd, result, err, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "manifest_hash=%s hash=%s\n", result.ManifestHash, result.Hash)
				for _, report := range result.Targets {
					line := fmt.Sprintf("%s %s", report.Status, report.Path)
					if len(report.Problems) > 0 {
						line += ": " + strings.Join(report.Problems, "; ")
					}
					_, _ = fmt.Fprintln(w, line)
				}
			})
		},
	}
	artifacts.register(cmd)
	return cmd
}
