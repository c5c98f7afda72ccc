package imageprocessing

import (
	"log/slog"
	"time"
)

// CompareFiles loads both images, rectifies them through quad and scores their similarity
func CompareFiles(referencePath, comparisonPath string, quad Quadrilateral) (float64, error) {
	start := time.Now()

	reference, err := LoadFile(referencePath)
	if err != nil {
		return 0, err
	}
	comparison, err := LoadFile(comparisonPath)
	if err != nil {
		return 0, err
	}

	reference, comparison, err = Rectify(reference, comparison, quad)
	if err != nil {
		return 0, err
	}

	similarity, err := Score(reference, comparison)
	if err != nil {
		return 0, err
	}

	slog.Debug("compared images",
		"reference", referencePath,
		"comparison", comparisonPath,
		"similarity", similarity,
		"duration_ms", time.Since(start).Milliseconds())

	return similarity, nil
}
