package manifest

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Header is the first line of every manifest. The trailing integer is the
// format version.
const Header = "Robust Content Manifest 1"

// DigestSize is the byte length of every manifest digest.
const DigestSize = blake2b.Size256

// Digest is a BLAKE2b-256 sum. It renders as uppercase hex.
type Digest [DigestSize]byte

func Sum(data []byte) Digest {
	return Digest(blake2b.Sum256(data))
}

func (d Digest) String() string {
	return strings.ToUpper(hex.EncodeToString(d[:]))
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func ParseDigest(value string) (Digest, error) {
	var digest Digest
	if len(value) != DigestSize*2 {
		return digest, fmt.Errorf("digest must be %d hex characters, got %d", DigestSize*2, len(value))
	}
	if strings.ToUpper(value) != value {
		return digest, fmt.Errorf("digest must be uppercase hex")
	}
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return digest, fmt.Errorf("decode digest: %w", err)
	}
	copy(digest[:], decoded)
	return digest, nil
}

type Line struct {
	Digest Digest
	Path   string
}

// Manifest holds lines sorted ascending by path in byte order.
type Manifest struct {
	Lines []Line
}

// Render serializes lines exactly as given: the header, then one
// "<DIGEST> <path>\n" per line. Callers pass lines already sorted.
func Render(lines []Line) []byte {
	size := len(Header) + 1
	for _, line := range lines {
		size += DigestSize*2 + 1 + len(line.Path) + 1
	}
	var buffer bytes.Buffer
	buffer.Grow(size)
	buffer.WriteString(Header)
	buffer.WriteByte('\n')
	for _, line := range lines {
		buffer.WriteString(line.Digest.String())
		buffer.WriteByte(' ')
		buffer.WriteString(line.Path)
		buffer.WriteByte('\n')
	}
	return buffer.Bytes()
}

// Hash is the manifest identity: the digest of the complete manifest text.
func Hash(text []byte) Digest {
	return Sum(text)
}

func (m Manifest) Text() []byte {
	return Render(m.Lines)
}

func (m Manifest) Hash() Digest {
	return Hash(m.Text())
}

func (m Manifest) Paths() []string {
	paths := make([]string, len(m.Lines))
	for index, line := range m.Lines {
		paths[index] = line.Path
	}
	return paths
}

// Lookup returns the line for path, if present.
func (m Manifest) Lookup(path string) (Line, bool) {
	low, high := 0, len(m.Lines)
	for low < high {
		mid := int(uint(low+high) >> 1)
		if m.Lines[mid].Path < path {
			low = mid + 1
		} else {
			high = mid
		}
	}
	if low < len(m.Lines) && m.Lines[low].Path == path {
		return m.Lines[low], true
	}
	return Line{}, false
}

// Parse reads manifest text produced by Render. Lines must be strictly
// ascending by path and every line must be newline terminated.
func Parse(text []byte) (Manifest, error) {
	if !bytes.HasSuffix(text, []byte{'\n'}) {
		return Manifest{}, fmt.Errorf("manifest must end with a newline")
	}
	rows := strings.Split(strings.TrimSuffix(string(text), "\n"), "\n")
	if rows[0] != Header {
		return Manifest{}, fmt.Errorf("unexpected manifest header %q", rows[0])
	}
	lines := make([]Line, 0, len(rows)-1)
	for index, row := range rows[1:] {
		lineNumber := index + 2
		digestText, path, found := strings.Cut(row, " ")
		if !found || path == "" {
			return Manifest{}, fmt.Errorf("line %d: expected \"<digest> <path>\"", lineNumber)
		}
		digest, err := ParseDigest(digestText)
		if err != nil {
			return Manifest{}, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		if len(lines) > 0 && lines[len(lines)-1].Path >= path {
			return Manifest{}, fmt.Errorf("line %d: path %q is not after %q", lineNumber, path, lines[len(lines)-1].Path)
		}
		lines = append(lines, Line{Digest: digest, Path: path})
	}
	return Manifest{Lines: lines}, nil
}
