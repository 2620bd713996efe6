package buildinfo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davidahmann/buildstamp/core/engineversion"
	coreerrors "github.com/davidahmann/buildstamp/core/errors"
	"github.com/davidahmann/buildstamp/core/manifest"
)

const (
	PlaceholderVersion = "{FORK_VERSION}"
	PlaceholderForkID  = "{FORK_ID}"
)

// Templates are distribution URL templates. They are embedded verbatim
// unless the assembler is told to expand placeholders.
type Templates struct {
	Download         string
	Manifest         string
	ManifestDownload string
}

type Input struct {
	Version             string
	ForkID              string
	PrimaryArtifactPath string
	EngineDir           string
	ManifestHash        manifest.Digest
}

type Assembler struct {
	Resolver        engineversion.Resolver
	Templates       Templates
	ExpandTemplates bool
}

func (a Assembler) Assemble(ctx context.Context, input Input) (Record, error) {
	buildVersion := strings.TrimSpace(input.Version)
	if buildVersion == "" {
		return Record{}, coreerrors.InvalidInput(fmt.Errorf("build version is required"), "version_required")
	}
	forkID := strings.TrimSpace(input.ForkID)
	if forkID == "" {
		return Record{}, coreerrors.InvalidInput(fmt.Errorf("fork id is required"), "fork_id_required")
	}
	if a.Resolver == nil {
		return Record{}, coreerrors.InvalidInput(fmt.Errorf("engine version resolver is required"), "resolver_required")
	}

	artifactHash, err := SHA256File(input.PrimaryArtifactPath)
	if err != nil {
		return Record{}, err
	}
	engineVersion, err := a.Resolver.Resolve(ctx, input.EngineDir)
	if err != nil {
		return Record{}, err
	}

	expand := func(template string) string {
		if !a.ExpandTemplates {
			return template
		}
		return ExpandTemplate(template, buildVersion, forkID)
	}
	return Record{
		Download:            expand(a.Templates.Download),
		Hash:                artifactHash,
		Version:             buildVersion,
		ForkID:              forkID,
		EngineVersion:       engineVersion,
		ManifestURL:         expand(a.Templates.Manifest),
		ManifestDownloadURL: expand(a.Templates.ManifestDownload),
		ManifestHash:        input.ManifestHash.String(),
	}, nil
}

func ExpandTemplate(template, buildVersion, forkID string) string {
	return strings.NewReplacer(PlaceholderVersion, buildVersion, PlaceholderForkID, forkID).Replace(template)
}

// SHA256File streams path through sha256 and returns lowercase hex.
func SHA256File(path string) (string, error) {
	// #nosec G304 -- artifact path is explicit caller input.
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", coreerrors.NotFound(fmt.Errorf("primary artifact %s does not exist", path), "artifact_not_found")
		}
		return "", coreerrors.IO(fmt.Errorf("open primary artifact %s: %w", path, err), "artifact_open_failed")
	}
	defer func() {
		_ = file.Close()
	}()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", coreerrors.IO(fmt.Errorf("hash primary artifact %s: %w", path, err), "artifact_read_failed")
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
