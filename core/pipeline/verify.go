package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/davidahmann/buildstamp/core/archive"
	"github.com/davidahmann/buildstamp/core/buildinfo"
	coreerrors "github.com/davidahmann/buildstamp/core/errors"
	"github.com/davidahmann/buildstamp/internal/logging"
)

const (
	VerifyStatusOK       = "ok"
	VerifyStatusMismatch = "mismatch"
)

type VerifyOptions struct {
	PrimaryArtifact string
	Targets         []string
	EntryName       string
	Workers         int
	Read            archive.ReadOptions
	Logger          *slog.Logger
}

type TargetReport struct {
	Path     string            `json:"path"`
	Status   string            `json:"status"`
	Record   *buildinfo.Record `json:"record,omitempty"`
	Problems []string          `json:"problems,omitempty"`
}

type VerifyResult struct {
	OK              bool           `json:"ok"`
	PrimaryArtifact string         `json:"primary_artifact"`
	ManifestHash    string         `json:"manifest_hash"`
	Hash            string         `json:"hash"`
	Targets         []TargetReport `json:"targets"`
}

// Verify recomputes the manifest hash and SHA-256 of the primary artifact and
// checks them against the build record stored in every target. Targets that
// disagree are reported and the returned error is verification_failed. A
// target that cannot be opened fails the run outright.
func Verify(ctx context.Context, opts VerifyOptions) (VerifyResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if strings.TrimSpace(opts.PrimaryArtifact) == "" {
		return VerifyResult{}, coreerrors.InvalidInput(fmt.Errorf("primary artifact is required"), "artifact_required")
	}
	if len(opts.Targets) == 0 {
		return VerifyResult{}, coreerrors.InvalidInput(fmt.Errorf("at least one target is required"), "targets_required")
	}
	entryName := opts.EntryName
	if entryName == "" {
		entryName = buildinfo.EntryName
	}

	built, _, err := BuildManifest(ctx, opts.PrimaryArtifact, opts.Read, opts.Workers, logger)
	if err != nil {
		return VerifyResult{}, err
	}
	artifactHash, err := buildinfo.SHA256File(opts.PrimaryArtifact)
	if err != nil {
		return VerifyResult{}, stageErr(StageRead, opts.PrimaryArtifact, err)
	}
	result := VerifyResult{
		OK:              true,
		PrimaryArtifact: opts.PrimaryArtifact,
		ManifestHash:    built.Hash().String(),
		Hash:            artifactHash,
		Targets:         make([]TargetReport, 0, len(opts.Targets)),
	}

	for _, target := range opts.Targets {
		if err := ctx.Err(); err != nil {
			return VerifyResult{}, err
		}
		report, err := verifyTarget(target, entryName, opts.Read, result.ManifestHash, result.Hash)
		if err != nil {
			return VerifyResult{}, stageErr(StageVerify, target, err)
		}
		if report.Status != VerifyStatusOK {
			result.OK = false
			logger.Warn("build record mismatch", "stage", StageVerify, "path", target, "problems", strings.Join(report.Problems, "; "))
		} else {
			logger.Info("build record verified", "stage", StageVerify, "path", target)
		}
		result.Targets = append(result.Targets, report)
	}

	if !result.OK {
		return result, coreerrors.VerificationFailed(fmt.Errorf("%d of %d targets do not match %s", countMismatched(result.Targets), len(result.Targets), opts.PrimaryArtifact), "record_mismatch")
	}
	return result, nil
}

func verifyTarget(target, entryName string, readOpts archive.ReadOptions, manifestHash, artifactHash string) (TargetReport, error) {
	source, err := archive.Open(target, readOpts)
	if err != nil {
		return TargetReport{}, err
	}
	defer func() {
		_ = source.Close()
	}()

	report := TargetReport{Path: target, Status: VerifyStatusOK}
	mismatch := func(format string, args ...any) {
		report.Status = VerifyStatusMismatch
		report.Problems = append(report.Problems, fmt.Sprintf(format, args...))
	}

	switch count := source.Count(entryName); count {
	case 0:
		mismatch("%s is missing", entryName)
		return report, nil
	case 1:
	default:
		mismatch("%s is stored %d times", entryName, count)
	}
	data, err := source.Read(entryName)
	if err != nil {
		return TargetReport{}, err
	}
	record, err := buildinfo.Parse(data)
	if err != nil {
		mismatch("%s does not parse: %v", entryName, err)
		return report, nil
	}
	report.Record = &record
	if record.ManifestHash != manifestHash {
		mismatch("manifest_hash %s does not match %s", record.ManifestHash, manifestHash)
	}
	if record.Hash != artifactHash {
		mismatch("hash %s does not match %s", record.Hash, artifactHash)
	}
	return report, nil
}

func countMismatched(reports []TargetReport) int {
	count := 0
	for _, report := range reports {
		if report.Status != VerifyStatusOK {
			count++
		}
	}
	return count
}
