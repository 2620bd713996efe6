package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	coreerrors "github.com/davidahmann/buildstamp/core/errors"
)

const (
	exitOK                = 0
	exitIOFailure         = 1
	exitInvalidInput      = 2
	exitVerifyFailed      = 3
	exitNotFound          = 4
	exitCorruptArchive    = 5
	exitVersionResolution = 6
	exitDuplicateEntry    = 7
	exitMissingDependency = 8
)

type outputEnvelope struct {
	OK            bool   `json:"ok"`
	Command       string `json:"command"`
	Result        any    `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
	Hint          string `json:"hint,omitempty"`
	Retryable     *bool  `json:"retryable,omitempty"`
}

// reportedError marks an error whose outcome the command has already written.
type reportedError struct {
	err  error
	json bool
}

func (e *reportedError) Error() string {
	return e.err.Error()
}

func (e *reportedError) Unwrap() error {
	return e.err
}

func newEnvelope(command string, result any, err error) outputEnvelope {
	envelope := outputEnvelope{OK: err == nil, Command: command, Result: result}
	if err == nil {
		return envelope
	}
	category := coreerrors.CategoryOf(err)
	if category == "" {
		category = coreerrors.CategoryInternalFailure
	}
	code := coreerrors.CodeOf(err)
	if code == "" {
		code = string(category)
	}
	retryable := coreerrors.RetryableOf(err)
	envelope.Error = err.Error()
	envelope.ErrorCode = code
	envelope.ErrorCategory = string(category)
	envelope.Hint = coreerrors.HintOf(err)
	envelope.Retryable = &retryable
	return envelope
}

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput:
		return exitInvalidInput
	case coreerrors.CategoryVerification:
		return exitVerifyFailed
	case coreerrors.CategoryNotFound:
		return exitNotFound
	case coreerrors.CategoryCorruptArchive:
		return exitCorruptArchive
	case coreerrors.CategoryVersionResolution:
		return exitVersionResolution
	case coreerrors.CategoryDuplicateEntry:
		return exitDuplicateEntry
	case coreerrors.CategoryDependencyMissing:
		return exitMissingDependency
	case coreerrors.CategoryIOFailure, coreerrors.CategoryStateContention, coreerrors.CategoryInternalFailure:
		return exitIOFailure
	}
	return fallbackExit
}

// writeJSON encodes v as indented JSON to w.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// finish writes the command outcome. JSON mode always emits the envelope;
// text mode calls render when there is something to show and leaves errors to
// run.
func (c *cli) finish(cmd *cobra.Command, result any, err error, render func(io.Writer)) error {
	if c.jsonOutput {
		if encodeErr := writeJSON(cmd.OutOrStdout(), newEnvelope(cmd.Name(), result, err)); encodeErr != nil && err == nil {
			err = coreerrors.IO(encodeErr, "output_encode_failed")
		}
	} else if render != nil && result != nil {
		render(cmd.OutOrStdout())
	}
	if err != nil {
		return &reportedError{err: err, json: c.jsonOutput}
	}
	return nil
}
