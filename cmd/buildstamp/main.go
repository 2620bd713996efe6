package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	coreerrors "github.com/davidahmann/buildstamp/core/errors"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, arguments []string, stdout, stderr io.Writer) int {
	state := &cli{stdout: stdout, stderr: stderr}
	root := newRootCommand(state)
	root.SetArgs(arguments)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var reported *reportedError
	if errors.As(err, &reported) {
		if !reported.json {
			writeErrorText(stderr, reported.err)
		}
		return exitCodeForError(reported.err, exitIOFailure)
	}
	if errors.Is(err, context.Canceled) {
		return exitIOFailure
	}
	// Anything cobra rejects before a command runs is a usage problem.
	_, _ = fmt.Fprintf(stderr, "buildstamp: %v\n", err)
	return exitCodeForError(err, exitInvalidInput)
}

func writeErrorText(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "buildstamp: %v\n", err)
	if hint := coreerrors.HintOf(err); hint != "" {
		_, _ = fmt.Fprintf(w, "hint: %s\n", hint)
	}
}
