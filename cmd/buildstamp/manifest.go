package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	coreerrors "github.com/davidahmann/buildstamp/core/errors"
	"github.com/davidahmann/buildstamp/core/fsx"
	"github.com/davidahmann/buildstamp/core/pipeline"
)

type manifestOutput struct {
	Path         string `json:"path"`
	Entries      int    `json:"entries"`
	Bytes        int64  `json:"bytes"`
	ManifestHash string `json:"manifest_hash"`
	Manifest     string `json:"manifest,omitempty"`
	Out          string `json:"out,omitempty"`
}

func newManifestCommand(state *cli) *cobra.Command {
	var (
		hashOnly bool
		workers  int
		out      string
	)
	cmd := &cobra.Command{
		Use:   "manifest [archive]",
		Short: "Print the content manifest of an archive",
		Long:  "Print the content manifest of an archive. Without an argument the configured primary artifact is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configuration, err := state.loadConfig()
			if err != nil {
				return state.finish(cmd, nil, err, nil)
			}
			path := configuration.PrimaryArtifactPath()
			if len(args) == 1 {
				if path, err = cliPath("archive", args[0]); err != nil {
					return state.finish(cmd, nil, err, nil)
				}
			}
			if !cmd.Flags().Changed("workers") {
				workers = configuration.Workers
			}
			logger, err := state.logger(configuration)
			if err != nil {
				return state.finish(cmd, nil, err, nil)
			}

			built, stats, err := pipeline.BuildManifest(cmd.Context(), path, archiveReadOptions(), workers, logger)
			if err != nil {
				return state.finish(cmd, nil, err, nil)
			}
			text := built.Text()
			output := manifestOutput{
				Path:         path,
				Entries:      stats.Entries,
				Bytes:        stats.Bytes,
				ManifestHash: built.Hash().String(),
			}
			if out != "" {
				target, err := cliPath("--out", out)
				if err != nil {
					return state.finish(cmd, nil, err, nil)
				}
				if err := fsx.WriteFileAtomic(target, text, 0o644); err != nil {
					return state.finish(cmd, nil, coreerrors.IO(fmt.Errorf("write manifest: %w", err), "manifest_write_failed"), nil)
				}
				output.Out = target
			} else if !hashOnly {
				output.Manifest = string(text)
			}
			return state.finish(cmd, output, nil, func(w io.Writer) {
				if hashOnly || out != "" {
					_, _ = fmt.Fprintln(w, output.ManifestHash)
					return
				}
				_, _ = w.Write(text)
			})
		},
	}
	cmd.Flags().BoolVar(&hashOnly, "hash", false, "Print only the manifest hash")
	cmd.Flags().StringVar(&out, "out", "", "Write the manifest text to this file and print its hash")
	cmd.Flags().IntVar(&workers, "workers", 0, "Hashing concurrency (0 = NumCPU)")
	return cmd
}
