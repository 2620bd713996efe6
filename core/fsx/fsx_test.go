package fsx

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func TestWriteFileAtomicCreatesAndOverwrites(t *testing.T) {
	target := filepath.Join(t.TempDir(), "build.json")

	if err := WriteFileAtomic(target, []byte("first\n"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	first, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read first write: %v", err)
	}
	if string(first) != "first\n" {
		t.Fatalf("unexpected first content: %q", string(first))
	}

	if err := WriteFileAtomic(target, []byte("second\n"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}
	second, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read second write: %v", err)
	}
	if string(second) != "second\n" {
		t.Fatalf("unexpected second content: %q", string(second))
	}
}

func TestWriteFileAtomicMode(t *testing.T) {
	target := filepath.Join(t.TempDir(), "secure.json")

	if err := WriteFileAtomic(target, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600 got %#o", info.Mode().Perm())
	}
}

func TestReplaceFileAtomicFailureKeepsOriginal(t *testing.T) {
	workDir := t.TempDir()
	target := filepath.Join(workDir, "server.zip")
	if err := os.WriteFile(target, []byte("original"), 0o600); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	writeErr := errors.New("copy failed")
	err := ReplaceFileAtomic(target, 0o600, func(writer io.Writer) error {
		_, _ = writer.Write([]byte("partial"))
		return writeErr
	})
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(content) != "original" {
		t.Fatalf("target modified on failure: %q", string(content))
	}
	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp file cleanup, found %d entries", len(entries))
	}
}

func TestValidateLocalOrAbsolutePath(t *testing.T) {
	if _, err := ValidateLocalOrAbsolutePath(""); err == nil {
		t.Fatal("expected empty path error")
	}
	if _, err := ValidateLocalOrAbsolutePath("../outside.zip"); err == nil {
		t.Fatal("expected traversal error")
	}
	cleaned, err := ValidateLocalOrAbsolutePath(" release/./SS14.Client.zip ")
	if err != nil {
		t.Fatalf("validate local path: %v", err)
	}
	if cleaned != filepath.Join("release", "SS14.Client.zip") {
		t.Fatalf("unexpected cleaned path: %s", cleaned)
	}
}

func TestWithFileLockRunsCallback(t *testing.T) {
	target := filepath.Join(t.TempDir(), "server.zip")
	called := false
	if err := WithFileLock(context.Background(), target, time.Second, func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("with file lock: %v", err)
	}
	if !called {
		t.Fatal("expected callback to run")
	}
}

func TestWithFileLockTimeout(t *testing.T) {
	target := filepath.Join(t.TempDir(), "server.zip")
	lockPath, err := LockPath(target)
	if err != nil {
		t.Fatalf("lock path: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		t.Fatalf("create lock dir: %v", err)
	}
	holder := flock.New(lockPath)
	if err := holder.Lock(); err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	defer func() {
		_ = holder.Unlock()
	}()

	err = WithFileLock(context.Background(), target, 100*time.Millisecond, func() error {
		t.Fatal("callback must not run while lock is held")
		return nil
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}
}

func TestWithFileLockLeavesTargetDirectoryClean(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "server.zip")
	if err := WriteFileAtomic(target, []byte("zip"), 0o600); err != nil {
		t.Fatalf("write target: %v", err)
	}
	if err := WithFileLock(context.Background(), target, time.Second, func() error { return nil }); err != nil {
		t.Fatalf("with file lock: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "server.zip" {
		t.Fatalf("lock must not be created next to the target: %v", entries)
	}
}

func TestLockPathIsStablePerFile(t *testing.T) {
	dir := t.TempDir()
	first, err := LockPath(filepath.Join(dir, "server.zip"))
	if err != nil {
		t.Fatalf("lock path: %v", err)
	}
	second, err := LockPath(filepath.Join(dir, ".", "server.zip"))
	if err != nil {
		t.Fatalf("lock path: %v", err)
	}
	other, err := LockPath(filepath.Join(dir, "client.zip"))
	if err != nil {
		t.Fatalf("lock path: %v", err)
	}
	if first != second || first == other {
		t.Fatalf("unexpected lock paths: %s %s %s", first, second, other)
	}
	if filepath.Dir(filepath.Dir(first)) != filepath.Clean(os.TempDir()) {
		t.Fatalf("lock must live under the temp dir: %s", first)
	}
}
