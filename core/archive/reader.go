package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/klauspost/compress/flate"

	coreerrors "github.com/davidahmann/buildstamp/core/errors"
)

// DefaultMaxEntryBytes bounds a single decompressed member.
const DefaultMaxEntryBytes int64 = 1 << 30

// Entry is one stored file: its logical zip path and decompressed content.
type Entry struct {
	Path    string
	Content []byte
}

type ReadOptions struct {
	MaxEntryBytes int64
}

// Archive is an open, read-only view of a zip container.
type Archive struct {
	path          string
	file          *os.File
	reader        *zip.Reader
	maxEntryBytes int64
}

func Open(path string, opts ReadOptions) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, coreerrors.NotFound(fmt.Errorf("archive %s does not exist", path), "archive_not_found")
		}
		return nil, coreerrors.IO(fmt.Errorf("stat archive %s: %w", path, err), "archive_stat_failed")
	}
	if info.IsDir() {
		return nil, coreerrors.CorruptArchive(fmt.Errorf("archive %s is a directory", path), "archive_not_file")
	}
	// #nosec G304 -- archive path is explicit caller input.
	file, err := os.Open(path)
	if err != nil {
		return nil, coreerrors.IO(fmt.Errorf("open archive %s: %w", path, err), "archive_open_failed")
	}
	reader, err := zip.NewReader(file, info.Size())
	if err != nil {
		_ = file.Close()
		return nil, coreerrors.CorruptArchive(fmt.Errorf("parse archive %s: %w", path, err), "archive_parse_failed")
	}
	reader.RegisterDecompressor(zip.Deflate, func(compressed io.Reader) io.ReadCloser {
		return flate.NewReader(compressed)
	})

	maxEntryBytes := opts.MaxEntryBytes
	if maxEntryBytes <= 0 {
		maxEntryBytes = DefaultMaxEntryBytes
	}
	return &Archive{
		path:          path,
		file:          file,
		reader:        reader,
		maxEntryBytes: maxEntryBytes,
	}, nil
}

func (a *Archive) Path() string {
	return a.path
}

func (a *Archive) Close() error {
	if a == nil || a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Names lists every stored member name in central directory order, directory
// markers included.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.reader.File))
	for _, zipFile := range a.reader.File {
		names = append(names, zipFile.Name)
	}
	return names
}

// Entries yields every non-directory member with its content fully
// decompressed. Each call walks the central directory again, so the sequence
// can be ranged over more than once. Iteration stops at the first error.
func (a *Archive) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, zipFile := range a.reader.File {
			if IsDirectory(zipFile.Name) {
				continue
			}
			content, err := a.readZipFile(zipFile)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(Entry{Path: zipFile.Name, Content: content}, nil) {
				return
			}
		}
	}
}

// Read returns the content of the first member called name.
func (a *Archive) Read(name string) ([]byte, error) {
	for _, zipFile := range a.reader.File {
		if zipFile.Name == name {
			return a.readZipFile(zipFile)
		}
	}
	return nil, coreerrors.NotFound(fmt.Errorf("archive %s has no entry %s", a.path, name), "entry_not_found")
}

// Count reports how many members are called name.
func (a *Archive) Count(name string) int {
	count := 0
	for _, zipFile := range a.reader.File {
		if zipFile.Name == name {
			count++
		}
	}
	return count
}

func (a *Archive) readZipFile(zipFile *zip.File) ([]byte, error) {
	if zipFile.UncompressedSize64 > uint64(a.maxEntryBytes) {
		return nil, coreerrors.CorruptArchive(fmt.Errorf("archive %s entry %s too large: %d", a.path, zipFile.Name, zipFile.UncompressedSize64), "entry_too_large")
	}
	reader, err := zipFile.Open()
	if err != nil {
		return nil, coreerrors.CorruptArchive(fmt.Errorf("open %s in %s: %w", zipFile.Name, a.path, err), "entry_open_failed")
	}
	defer func() {
		_ = reader.Close()
	}()
	limitedReader := io.LimitReader(reader, a.maxEntryBytes+1)
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		if isCorruption(err) {
			return nil, coreerrors.CorruptArchive(fmt.Errorf("read %s in %s: %w", zipFile.Name, a.path, err), "entry_corrupt")
		}
		return nil, coreerrors.IO(fmt.Errorf("read %s in %s: %w", zipFile.Name, a.path, err), "entry_read_failed")
	}
	if int64(len(data)) > a.maxEntryBytes {
		return nil, coreerrors.CorruptArchive(fmt.Errorf("archive %s entry %s exceeds max size", a.path, zipFile.Name), "entry_too_large")
	}
	return data, nil
}

func isCorruption(err error) bool {
	var corruptInput flate.CorruptInputError
	return errors.Is(err, zip.ErrChecksum) ||
		errors.Is(err, zip.ErrFormat) ||
		errors.Is(err, zip.ErrAlgorithm) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &corruptInput)
}

// IsDirectory reports whether a zip member name denotes a directory marker.
func IsDirectory(name string) bool {
	return strings.HasSuffix(name, "/")
}
