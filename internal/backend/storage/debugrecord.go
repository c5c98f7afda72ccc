package storage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DebugImagePrefix marks retained comparison images
	DebugImagePrefix = "debug_comparison_"
	// MaxDebugImages is the number of debug images kept on disk
	MaxDebugImages = 5

	debugTimestampLayout = "20060102_150405"
)

// debug_comparison_YYYYMMDD_HHMMSS_<int>_<4 decimals>.jpg
var debugFilenamePattern = regexp.MustCompile(`^` + DebugImagePrefix + `(\d{8}_\d{6})_(-?\d+)_(\d{4})\` + ImageExtension + `$`)

// DebugRecord describes one retained comparison image
type DebugRecord struct {
	Filename   string    `json:"filename"`
	Timestamp  string    `json:"timestamp"`
	CapturedAt time.Time `json:"captured_at"`
	Threshold  float64   `json:"threshold"`
}

// DebugFilename derives the on-disk name for a comparison scored at capturedAt
func DebugFilename(capturedAt time.Time, score float64) string {
	scoreText := strings.Replace(strconv.FormatFloat(score, 'f', 4, 64), ".", "_", 1)
	return fmt.Sprintf("%s%s_%s%s", DebugImagePrefix, capturedAt.Format(debugTimestampLayout), scoreText, ImageExtension)
}

// ParseDebugFilename reconstructs a record from a debug image name.
// It reports false for any name that does not follow the naming scheme.
func ParseDebugFilename(filename string) (DebugRecord, bool) {
	match := debugFilenamePattern.FindStringSubmatch(filename)
	if match == nil {
		return DebugRecord{}, false
	}

	capturedAt, err := time.ParseInLocation(debugTimestampLayout, match[1], time.Local)
	if err != nil {
		return DebugRecord{}, false
	}
	threshold, err := strconv.ParseFloat(match[2]+"."+match[3], 64)
	if err != nil {
		return DebugRecord{}, false
	}

	return DebugRecord{
		Filename:   filename,
		Timestamp:  match[1],
		CapturedAt: capturedAt,
		Threshold:  threshold,
	}, true
}
