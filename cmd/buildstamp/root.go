package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	coreerrors "github.com/davidahmann/buildstamp/core/errors"
	"github.com/davidahmann/buildstamp/core/projectconfig"
	"github.com/davidahmann/buildstamp/internal/logging"
)

type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	jsonOutput bool
	logLevel   string
	logFormat  string
}

func newRootCommand(state *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "buildstamp",
		Short:         "Stamp release archives with a content manifest build record",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetVersionTemplate("buildstamp {{.Version}}\n")

	rootCmd.PersistentFlags().StringVarP(&state.configPath, "config", "c", "", "Configuration file path (default "+projectconfig.DefaultPath+")")
	rootCmd.PersistentFlags().BoolVar(&state.jsonOutput, "json", false, "Emit JSON output")
	rootCmd.PersistentFlags().StringVar(&state.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&state.logFormat, "log-format", "", "Log format (console|json)")

	rootCmd.AddCommand(newInjectCommand(state))
	rootCmd.AddCommand(newManifestCommand(state))
	rootCmd.AddCommand(newVerifyCommand(state))
	rootCmd.AddCommand(newDoctorCommand(state))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "buildstamp", version)
			return err
		},
	}
}

// loadConfig reads the explicit --config path, or the default path when it
// exists. Flag overrides are applied by each command before Validate.
func (c *cli) loadConfig() (projectconfig.Config, error) {
	path := strings.TrimSpace(c.configPath)
	allowMissing := path == ""
	if allowMissing {
		path = projectconfig.DefaultPath
	}
	configuration, err := projectconfig.Load(path, allowMissing)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return projectconfig.Config{}, coreerrors.NotFound(err, "config_not_found")
		}
		return projectconfig.Config{}, coreerrors.InvalidInput(err, "config_invalid")
	}
	return configuration, nil
}

func validateConfig(configuration projectconfig.Config) error {
	if err := configuration.Validate(); err != nil {
		return coreerrors.InvalidInput(fmt.Errorf("config: %w", err), "config_invalid")
	}
	return nil
}

func (c *cli) logger(configuration projectconfig.Config) (*slog.Logger, error) {
	level := configuration.Log.Level
	if c.logLevel != "" {
		level = c.logLevel
	}
	format := configuration.Log.Format
	if c.logFormat != "" {
		format = c.logFormat
	}
	logger, err := logging.New(logging.Options{Level: level, Format: format, Writer: c.stderr})
	if err != nil {
		return nil, coreerrors.InvalidInput(err, "log_options_invalid")
	}
	return logger, nil
}

// firstNonEmpty returns the flag value, else the first set environment
// variable, else fallback.
func firstNonEmpty(flagValue string, fallback string, envKeys ...string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	for _, key := range envKeys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(fallback)
}
