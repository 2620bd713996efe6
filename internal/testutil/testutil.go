package testutil

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// FixtureTime stamps every fixture zip member so fixture bytes are stable.
var FixtureTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// ZipFile describes one fixture member. Members with data are deflated
// unless Stored is set; directory markers and empty members are stored.
type ZipFile struct {
	Path   string
	Data   []byte
	Stored bool
}

type ZipMember struct {
	Name   string
	Data   []byte
	Method uint16
	CRC32  uint32
}

func RepoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to locate testutil source file")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("create parent directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func MustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	content, err := os.ReadFile(path) // #nosec G304 -- test helper for controlled paths.
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}

// WriteZip writes files to path in the given order. Paths ending in "/" are
// stored as directory markers.
func WriteZip(t *testing.T, path string, files []ZipFile) {
	t.Helper()
	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for _, file := range files {
		method := zip.Store
		if len(file.Data) > 0 && !file.Stored {
			method = zip.Deflate
		}
		header := &zip.FileHeader{Name: file.Path, Method: method, Modified: FixtureTime}
		entry, err := writer.CreateHeader(header)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", file.Path, err)
		}
		if len(file.Data) > 0 {
			if _, err := entry.Write(file.Data); err != nil {
				t.Fatalf("write zip entry %s: %v", file.Path, err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close zip %s: %v", path, err)
	}
	WriteFile(t, path, buffer.Bytes())
}

// ReadZip returns every member of the zip at path in central directory order.
func ReadZip(t *testing.T, path string) []ZipMember {
	t.Helper()
	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip %s: %v", path, err)
	}
	defer func() {
		_ = reader.Close()
	}()
	members := make([]ZipMember, 0, len(reader.File))
	for _, file := range reader.File {
		opened, err := file.Open()
		if err != nil {
			t.Fatalf("open zip member %s: %v", file.Name, err)
		}
		data, err := io.ReadAll(opened)
		_ = opened.Close()
		if err != nil {
			t.Fatalf("read zip member %s: %v", file.Name, err)
		}
		members = append(members, ZipMember{
			Name:   file.Name,
			Data:   data,
			Method: file.Method,
			CRC32:  file.CRC32,
		})
	}
	return members
}

// RequireGit skips the test when git is not installed.
func RequireGit(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("git")
	if err != nil {
		t.Skip("git not available on PATH")
	}
	return path
}

// InitTaggedRepo creates a git repository in dir with one commit and, when tag
// is non-empty, a lightweight tag on it.
func InitTaggedRepo(t *testing.T, dir string, tag string) {
	t.Helper()
	RequireGit(t)
	WriteFile(t, filepath.Join(dir, "README"), []byte("engine\n"))
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "add", "README")
	runGit(t, dir, "-c", "user.name=buildstamp", "-c", "user.email=buildstamp@example.invalid", "commit", "-q", "-m", "init")
	if tag != "" {
		runGit(t, dir, "tag", tag)
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	// #nosec G204 -- arguments are fixed and used only in tests.
	command := exec.Command("git", args...)
	command.Dir = dir
	command.Env = append(os.Environ(), "GIT_CONFIG_NOSYSTEM=1", "HOME="+dir)
	if out, err := command.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, string(out))
	}
}
