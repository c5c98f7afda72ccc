package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jo-hoe/bedready/internal/backend/imageprocessing"
	"github.com/jo-hoe/bedready/internal/backend/settings"
	"github.com/jo-hoe/bedready/internal/backend/storage"
)

// ErrNoReference is returned when neither the request nor the settings name a reference image
var ErrNoReference = errors.New("no reference image configured")

// ComparisonResult is the verdict of a single bed check
type ComparisonResult struct {
	BedClear       bool    `json:"bed_clear"`
	Similarity     float64 `json:"similarity"`
	ReferenceImage string  `json:"reference_image"`
	TestImage      string  `json:"test_image"`
}

// Request carries the optional per-check overrides
type Request struct {
	// Reference overrides the configured reference image when non-empty
	Reference string
	// Threshold overrides the configured match percentage when set
	Threshold *float64
	// StoreDebug forwards the comparison to the artifact retainer
	StoreDebug bool
}

// SnapshotAcquirer fetches a camera still into the data directory
type SnapshotAcquirer interface {
	Acquire(ctx context.Context, sourceURL, destinationName string) error
}

// ArtifactRetainer keeps comparison images for later diagnosis
type ArtifactRetainer interface {
	Retain(imagePath string, score float64, enabled bool) error
}

// Engine runs acquire, rectify, score and threshold for one check
type Engine struct {
	directory   string
	snapshotURL string
	acquirer    SnapshotAcquirer
	retainer    ArtifactRetainer
}

func NewEngine(directory, snapshotURL string, acquirer SnapshotAcquirer, retainer ArtifactRetainer) *Engine {
	return &Engine{
		directory:   directory,
		snapshotURL: snapshotURL,
		acquirer:    acquirer,
		retainer:    retainer,
	}
}

// IsClear applies the threshold; a similarity equal to the threshold fails
func IsClear(similarity, threshold float64) bool {
	return similarity > threshold
}

// Decide captures a fresh comparison snapshot and compares it against the
// reference. No result is returned when acquisition or scoring fails.
func (e *Engine) Decide(ctx context.Context, cfg settings.Settings, req Request) (*ComparisonResult, error) {
	reference := req.Reference
	if reference == "" {
		reference = cfg.ReferenceImage
	}
	threshold := cfg.MatchPercentage
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	slog.Info("check_bed", "reference", reference, "threshold", threshold)

	if reference == "" {
		return nil, ErrNoReference
	}
	referencePath, err := storage.Resolve(e.directory, reference)
	if err != nil {
		return nil, err
	}

	if err := e.acquirer.Acquire(ctx, e.snapshotURL, storage.ComparisonFilename); err != nil {
		slog.Error("error during snapshot comparison", "stage", "acquire", "error", err)
		return nil, fmt.Errorf("failed to acquire comparison snapshot: %w", err)
	}

	comparisonPath := filepath.Join(e.directory, storage.ComparisonFilename)
	similarity, err := imageprocessing.CompareFiles(referencePath, comparisonPath, cfg.Quadrilateral())
	if err != nil {
		slog.Error("error during snapshot comparison", "stage", "score", "error", err)
		return nil, fmt.Errorf("failed to compare snapshots: %w", err)
	}

	if req.StoreDebug {
		if err := e.retainer.Retain(comparisonPath, similarity, cfg.DebugMode); err != nil {
			slog.Error("failed to retain debug image", "error", err)
		}
	}

	result := &ComparisonResult{
		BedClear:       IsClear(similarity, threshold),
		Similarity:     similarity,
		ReferenceImage: reference,
		TestImage:      storage.ComparisonFilename,
	}
	slog.Info("check_bed completed",
		"reference", reference,
		"similarity", similarity,
		"threshold", threshold,
		"bed_clear", result.BedClear)

	return result, nil
}
