package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"golang.org/x/sync/errgroup"

	coreerrors "github.com/davidahmann/buildstamp/core/errors"
	"github.com/davidahmann/buildstamp/core/fsx"
)

// DuplicatePolicy decides what happens when the target already holds an entry
// with the injected name.
type DuplicatePolicy string

const (
	// DuplicateReject fails with a duplicate_entry error and leaves the target untouched.
	DuplicateReject DuplicatePolicy = "reject"
	// DuplicateReplace drops every existing member with the name and appends the new one.
	DuplicateReplace DuplicatePolicy = "replace"
)

const defaultLockTimeout = 30 * time.Second

func ParseDuplicatePolicy(value string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(DuplicateReject):
		return DuplicateReject, nil
	case string(DuplicateReplace):
		return DuplicateReplace, nil
	default:
		return "", fmt.Errorf("unsupported duplicate policy %q (expected reject|replace)", value)
	}
}

type InjectOptions struct {
	Policy DuplicatePolicy
	// Modified stamps the new entry header. Zero means time.Now().
	Modified         time.Time
	CompressionLevel int
	LockTimeout      time.Duration
	// Concurrency bounds InjectAll fan-out. Zero or negative means one goroutine per target.
	Concurrency int
}

type InjectResult struct {
	Path          string `json:"path"`
	EntryName     string `json:"entry_name"`
	EntriesBefore int    `json:"entries_before"`
	EntriesAfter  int    `json:"entries_after"`
	Replaced      int    `json:"replaced,omitempty"`
	PayloadBytes  int    `json:"payload_bytes"`
}

// Inject rewrites target with payload stored under name. Existing members are
// copied in their stored (compressed) form without being decoded, so their
// bytes, CRCs and order are preserved. The rewrite is staged next to target
// and renamed into place only after the new central directory is written.
func Inject(ctx context.Context, target string, name string, payload []byte, opts InjectOptions) (InjectResult, error) {
	if strings.TrimSpace(name) == "" || IsDirectory(name) {
		return InjectResult{}, coreerrors.InvalidInput(fmt.Errorf("entry name %q must name a file", name), "entry_name_invalid")
	}
	policy, err := ParseDuplicatePolicy(string(opts.Policy))
	if err != nil {
		return InjectResult{}, coreerrors.InvalidInput(err, "duplicate_policy_invalid")
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return InjectResult{}, coreerrors.NotFound(fmt.Errorf("target archive %s does not exist", target), "archive_not_found")
		}
		return InjectResult{}, coreerrors.IO(fmt.Errorf("stat target archive %s: %w", target, err), "archive_stat_failed")
	}
	modified := opts.Modified
	if modified.IsZero() {
		modified = time.Now()
	}
	level := opts.CompressionLevel
	if level == 0 {
		level = flate.DefaultCompression
	}
	lockTimeout := opts.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}

	result := InjectResult{Path: target, EntryName: name, PayloadBytes: len(payload)}
	err = fsx.WithFileLock(ctx, target, lockTimeout, func() error {
		return fsx.ReplaceFileAtomic(target, info.Mode().Perm(), func(out io.Writer) error {
			source, err := Open(target, ReadOptions{})
			if err != nil {
				return err
			}
			defer func() {
				_ = source.Close()
			}()

			existing := source.Count(name)
			if existing > 0 && policy == DuplicateReject {
				return coreerrors.DuplicateEntry(fmt.Errorf("target archive %s already contains %s", target, name), "entry_exists")
			}
			result.EntriesBefore = len(source.reader.File)

			writer := zip.NewWriter(out)
			writer.RegisterCompressor(zip.Deflate, func(compressed io.Writer) (io.WriteCloser, error) {
				return flate.NewWriter(compressed, level)
			})
			written, err := copyMembers(ctx, writer, source, name)
			if err != nil {
				_ = writer.Close()
				return err
			}
			header := &zip.FileHeader{
				Name:     name,
				Method:   zip.Deflate,
				Modified: modified,
			}
			header.SetMode(0o644)
			entryWriter, err := writer.CreateHeader(header)
			if err != nil {
				_ = writer.Close()
				return coreerrors.IO(fmt.Errorf("create %s in %s: %w", name, target, err), "entry_create_failed")
			}
			if _, err := entryWriter.Write(payload); err != nil {
				_ = writer.Close()
				return coreerrors.IO(fmt.Errorf("write %s in %s: %w", name, target, err), "entry_write_failed")
			}
			if comment := source.reader.Comment; comment != "" {
				if err := writer.SetComment(comment); err != nil {
					_ = writer.Close()
					return coreerrors.IO(fmt.Errorf("carry archive comment for %s: %w", target, err), "archive_comment_failed")
				}
			}
			if err := writer.Close(); err != nil {
				return coreerrors.IO(fmt.Errorf("finalize %s: %w", target, err), "archive_finalize_failed")
			}
			result.Replaced = existing
			result.EntriesAfter = written + 1
			return nil
		})
	})
	if err != nil {
		return InjectResult{}, classifyInjectError(target, err)
	}
	return result, nil
}

func copyMembers(ctx context.Context, writer *zip.Writer, source *Archive, skip string) (int, error) {
	written := 0
	for _, zipFile := range source.reader.File {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if zipFile.Name == skip {
			continue
		}
		if err := writer.Copy(zipFile); err != nil {
			return written, coreerrors.IO(fmt.Errorf("copy %s from %s: %w", zipFile.Name, source.path, err), "entry_copy_failed")
		}
		written++
	}
	return written, nil
}

func classifyInjectError(target string, err error) error {
	if coreerrors.CategoryOf(err) != "" {
		return err
	}
	if errors.Is(err, fsx.ErrLockTimeout) {
		return coreerrors.Wrap(err, coreerrors.CategoryStateContention, "archive_locked", "another writer holds the archive lock; retry when it finishes", true)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("inject %s: %w", target, err)
	}
	return coreerrors.IO(fmt.Errorf("inject %s: %w", target, err), "archive_write_failed")
}

// TargetError reports which InjectAll target failed.
type TargetError struct {
	Path string
	Err  error
}

func (e *TargetError) Error() string {
	return e.Err.Error()
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// InjectAll injects payload into every target concurrently. Results follow
// the order of targets; the first failure cancels outstanding work and is
// returned as a *TargetError.
func InjectAll(ctx context.Context, targets []string, name string, payload []byte, opts InjectOptions) ([]InjectResult, error) {
	results := make([]InjectResult, len(targets))
	group, groupCtx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		group.SetLimit(opts.Concurrency)
	}
	for index, target := range targets {
		group.Go(func() error {
			result, err := Inject(groupCtx, target, name, payload, opts)
			if err != nil {
				return &TargetError{Path: target, Err: err}
			}
			results[index] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
