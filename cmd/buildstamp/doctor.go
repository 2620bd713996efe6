package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/davidahmann/buildstamp/core/doctor"
	"github.com/davidahmann/buildstamp/core/engineversion"
	coreerrors "github.com/davidahmann/buildstamp/core/errors"
)

func newDoctorCommand(state *cli) *cobra.Command {
	var (
		workDir       string
		engineVersion string
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the release checkout is ready for inject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configuration, err := state.loadConfig()
			if err != nil {
				return state.finish(cmd, nil, err, nil)
			}
			options := doctor.Options{
				WorkDir:         workDir,
				Config:          configuration,
				ProducerVersion: version,
			}
			if engineVersion != "" {
				options.Resolver = engineversion.Static(engineVersion)
			}
			result := doctor.Run(cmd.Context(), options)
			if result.Status == "fail" {
				err = coreerrors.VerificationFailed(fmt.Errorf("%s", result.Summary), "doctor_failed")
			}
			return state.finish(cmd, result, err, func(w io.Writer) {
				for _, check := range result.Checks {
					_, _ = fmt.Fprintf(w, "%-4s %s: %s\n", check.Status, check.Name, check.Message)
				}
				for _, fix := range result.FixCommands {
					_, _ = fmt.Fprintf(w, "fix: %s\n", fix)
				}
				_, _ = fmt.Fprintln(w, result.Summary)
			})
		},
	}
	cmd.Flags().StringVar(&workDir, "workdir", ".", "Directory relative paths are resolved against")
	cmd.Flags().StringVar(&engineVersion, "engine-version", "", "Pinned engine version; skips the git tag check")
	return cmd
}
