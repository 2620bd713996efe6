package manifest

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/davidahmann/buildstamp/core/archive"
	coreerrors "github.com/davidahmann/buildstamp/core/errors"
)

type BuildOptions struct {
	// Workers is the number of hashing goroutines. Zero means runtime.NumCPU().
	Workers int
}

type BuildStats struct {
	Entries int
	Bytes   int64
}

// Build materializes entries, sorts them by path and digests each one.
// Directory markers are dropped. The result depends only on the set of
// (path, content) pairs, not on the order they were yielded in.
func Build(ctx context.Context, entries iter.Seq2[archive.Entry, error], opts BuildOptions) (Manifest, BuildStats, error) {
	var collected []archive.Entry
	seen := map[string]struct{}{}
	var stats BuildStats
	for entry, err := range entries {
		if err != nil {
			return Manifest{}, BuildStats{}, err
		}
		if archive.IsDirectory(entry.Path) {
			continue
		}
		if _, exists := seen[entry.Path]; exists {
			return Manifest{}, BuildStats{}, coreerrors.CorruptArchive(fmt.Errorf("duplicate entry path %s", entry.Path), "entry_path_duplicate")
		}
		seen[entry.Path] = struct{}{}
		collected = append(collected, entry)
		stats.Bytes += int64(len(entry.Content))
	}
	stats.Entries = len(collected)

	sort.Slice(collected, func(left, right int) bool {
		return collected[left].Path < collected[right].Path
	})

	lines := make([]Line, len(collected))
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for index, entry := range collected {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			lines[index] = Line{Digest: Sum(entry.Content), Path: entry.Path}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Manifest{}, BuildStats{}, err
	}
	return Manifest{Lines: lines}, stats, nil
}

// FromArchive builds the manifest of every file stored in a.
func FromArchive(ctx context.Context, a *archive.Archive, opts BuildOptions) (Manifest, BuildStats, error) {
	return Build(ctx, a.Entries(), opts)
}
