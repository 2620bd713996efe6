package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/davidahmann/buildstamp/core/archive"
	"github.com/davidahmann/buildstamp/core/buildinfo"
	"github.com/davidahmann/buildstamp/core/engineversion"
	coreerrors "github.com/davidahmann/buildstamp/core/errors"
	"github.com/davidahmann/buildstamp/core/fsx"
	"github.com/davidahmann/buildstamp/core/manifest"
	"github.com/davidahmann/buildstamp/internal/logging"
)

type Stage string

const (
	StageRead     Stage = "read"
	StageManifest Stage = "manifest"
	StageAssemble Stage = "assemble"
	StageEncode   Stage = "encode"
	StageWrite    Stage = "write"
	StagePublish  Stage = "publish"
	StageVerify   Stage = "verify"
)

// StageError names the stage and path a run failed at. The classification of
// Err is visible through Unwrap.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("stage=%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage=%s path=%s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Path: path, Err: err}
}

type Options struct {
	PrimaryArtifact string
	Targets         []string
	EntryName       string
	EngineDir       string
	Version         string
	ForkID          string
	Resolver        engineversion.Resolver
	Templates       buildinfo.Templates
	ExpandTemplates bool
	Workers         int
	Read            archive.ReadOptions
	Inject          archive.InjectOptions
	// ManifestOut and RecordOut, when set, receive copies of the manifest text
	// and the build.json payload for upload next to the archives.
	ManifestOut string
	RecordOut   string
	Logger      *slog.Logger
}

type Result struct {
	PrimaryArtifact string                 `json:"primary_artifact"`
	Entries         int                    `json:"entries"`
	Bytes           int64                  `json:"bytes"`
	ManifestHash    string                 `json:"manifest_hash"`
	Record          buildinfo.Record       `json:"record"`
	RecordDigest    string                 `json:"record_digest"`
	Targets         []archive.InjectResult `json:"targets"`
	ManifestOut     string                 `json:"manifest_out,omitempty"`
	RecordOut       string                 `json:"record_out,omitempty"`
}

// Run reads the primary artifact, builds and hashes its manifest, assembles
// the build record and injects it into every target. The first failing stage
// aborts the run.
func Run(ctx context.Context, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if strings.TrimSpace(opts.PrimaryArtifact) == "" {
		return Result{}, coreerrors.InvalidInput(fmt.Errorf("primary artifact is required"), "artifact_required")
	}
	if len(opts.Targets) == 0 {
		return Result{}, coreerrors.InvalidInput(fmt.Errorf("at least one target is required"), "targets_required")
	}
	entryName := opts.EntryName
	if entryName == "" {
		entryName = buildinfo.EntryName
	}

	built, stats, err := BuildManifest(ctx, opts.PrimaryArtifact, opts.Read, opts.Workers, logger)
	if err != nil {
		return Result{}, err
	}
	manifestHash := built.Hash()
	logger.Info("manifest hashed", "stage", StageManifest, "manifest_hash", manifestHash.String())

	assembleStarted := time.Now()
	assembler := buildinfo.Assembler{
		Resolver:        opts.Resolver,
		Templates:       opts.Templates,
		ExpandTemplates: opts.ExpandTemplates,
	}
	record, err := assembler.Assemble(ctx, buildinfo.Input{
		Version:             opts.Version,
		ForkID:              opts.ForkID,
		PrimaryArtifactPath: opts.PrimaryArtifact,
		EngineDir:           opts.EngineDir,
		ManifestHash:        manifestHash,
	})
	if err != nil {
		return Result{}, stageErr(StageAssemble, opts.PrimaryArtifact, err)
	}
	logger.Info("record assembled",
		"stage", StageAssemble,
		"version", record.Version,
		"fork_id", record.ForkID,
		"engine_version", record.EngineVersion,
		"elapsed", time.Since(assembleStarted).Round(time.Millisecond),
	)

	payload, err := buildinfo.Marshal(record)
	if err != nil {
		return Result{}, stageErr(StageEncode, entryName, err)
	}
	recordDigest, err := buildinfo.Digest(record)
	if err != nil {
		return Result{}, stageErr(StageEncode, entryName, err)
	}

	results := make([]archive.InjectResult, 0, len(opts.Targets))
	injected, err := archive.InjectAll(ctx, opts.Targets, entryName, payload, opts.Inject)
	if err != nil {
		return Result{}, stageErr(StageWrite, failedTarget(err), err)
	}
	for _, target := range injected {
		logger.Info("record injected",
			"stage", StageWrite,
			"path", target.Path,
			"entries", target.EntriesAfter,
			"replaced", target.Replaced,
			"bytes", humanize.IBytes(uint64(target.PayloadBytes)),
		)
		results = append(results, target)
	}

	if err := publish(opts.ManifestOut, built.Text(), logger); err != nil {
		return Result{}, err
	}
	if err := publish(opts.RecordOut, payload, logger); err != nil {
		return Result{}, err
	}

	return Result{
		PrimaryArtifact: opts.PrimaryArtifact,
		Entries:         stats.Entries,
		Bytes:           stats.Bytes,
		ManifestHash:    manifestHash.String(),
		Record:          record,
		RecordDigest:    recordDigest,
		Targets:         results,
		ManifestOut:     opts.ManifestOut,
		RecordOut:       opts.RecordOut,
	}, nil
}

// publish writes content to path atomically. An empty path is a no-op.
func publish(path string, content []byte, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	if err := fsx.WriteFileAtomic(path, content, 0o644); err != nil {
		return stageErr(StagePublish, path, coreerrors.IO(err, "publish_failed"))
	}
	logger.Info("file published", "stage", StagePublish, "path", path, "bytes", humanize.IBytes(uint64(len(content))))
	return nil
}

// BuildManifest opens path and returns the manifest of its contents.
func BuildManifest(ctx context.Context, path string, readOpts archive.ReadOptions, workers int, logger *slog.Logger) (manifest.Manifest, manifest.BuildStats, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	started := time.Now()
	source, err := archive.Open(path, readOpts)
	if err != nil {
		return manifest.Manifest{}, manifest.BuildStats{}, stageErr(StageRead, path, err)
	}
	defer func() {
		_ = source.Close()
	}()
	built, stats, err := manifest.FromArchive(ctx, source, manifest.BuildOptions{Workers: workers})
	if err != nil {
		return manifest.Manifest{}, manifest.BuildStats{}, stageErr(StageManifest, path, err)
	}
	logger.Info("manifest built",
		"stage", StageManifest,
		"path", path,
		"entries", stats.Entries,
		"bytes", humanize.IBytes(uint64(stats.Bytes)),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return built, stats, nil
}

func failedTarget(err error) string {
	var targetErr *archive.TargetError
	if errors.As(err, &targetErr) {
		return targetErr.Path
	}
	return ""
}
