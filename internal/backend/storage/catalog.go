package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// ImageExtension is the extension of every stored image
	ImageExtension = ".jpg"
	// TestFilename is reserved for manual test captures
	TestFilename = "test.jpg"
	// ComparisonFilename holds the most recent comparison snapshot
	ComparisonFilename = "comparison.jpg"
	// ReferenceFilename is written by the capture-reference text command
	ReferenceFilename = "reference.jpg"
)

var (
	// ErrPathEscape is returned when a filename resolves outside the data directory
	ErrPathEscape = errors.New("path is outside of data directory")
	// ErrNotAFile is returned when a target does not exist or is not a regular file
	ErrNotAFile = errors.New("path is not a file")
	// ErrNotDebugImage is returned when a debug-only operation targets another file
	ErrNotDebugImage = errors.New("can only delete debug images")
)

// Catalog enumerates and manages the images stored in a single flat data directory
type Catalog struct {
	directory string
}

// NewCatalog creates the data directory if needed and returns a catalog over it
func NewCatalog(directory string) (*Catalog, error) {
	if directory == "" {
		return nil, fmt.Errorf("data directory must not be empty")
	}
	absolute, err := filepath.Abs(directory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory %s: %w", directory, err)
	}
	if err := os.MkdirAll(absolute, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", absolute, err)
	}
	return &Catalog{directory: absolute}, nil
}

// Directory returns the absolute data directory
func (c *Catalog) Directory() string {
	return c.directory
}

// Resolve maps filename into the data directory, rejecting traversal and absolute paths
func (c *Catalog) Resolve(filename string) (string, error) {
	return Resolve(c.directory, filename)
}

// Resolve maps filename into directory. Any name that is absolute, contains a
// ".." component or otherwise lands outside directory fails with ErrPathEscape.
func Resolve(directory, filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("%w: empty filename", ErrNotAFile)
	}
	if filepath.IsAbs(filename) || strings.HasPrefix(filename, "/") || strings.HasPrefix(filename, `\`) || hasTraversal(filename) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, filename)
	}

	root, err := filepath.Abs(directory)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	full := filepath.Join(root, filename)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, filename)
	}
	return full, nil
}

func hasTraversal(filename string) bool {
	parts := strings.FieldsFunc(filename, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	return slices.Contains(parts, "..")
}

// List returns the user-visible snapshots: every .jpg except the reserved
// comparison/test files and debug images.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	snapshots := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || filepath.Ext(name) != ImageExtension {
			continue
		}
		if name == TestFilename || name == ComparisonFilename || strings.HasPrefix(name, DebugImagePrefix) {
			continue
		}
		snapshots = append(snapshots, name)
	}
	return snapshots, nil
}

// ListDebug returns the parsed debug records, newest first. Files whose names
// do not follow the debug naming scheme are skipped.
func (c *Catalog) ListDebug() ([]DebugRecord, error) {
	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	names := make([]string, 0)
	for _, entry := range entries {
		name := entry.Name()
		if entry.Type().IsRegular() && strings.HasPrefix(name, DebugImagePrefix) && filepath.Ext(name) == ImageExtension {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	slices.Reverse(names)

	records := make([]DebugRecord, 0, len(names))
	for _, name := range names {
		record, ok := ParseDebugFilename(name)
		if !ok {
			slog.Debug("skipping malformed debug image name", "filename", name)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes a stored image
func (c *Catalog) Delete(filename string) error {
	path, err := c.Resolve(filename)
	if err != nil {
		return err
	}
	return removeRegularFile(path, filename)
}

// DeleteDebug removes a stored debug image; other files are refused
func (c *Catalog) DeleteDebug(filename string) error {
	path, err := c.Resolve(filename)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(filepath.Base(path), DebugImagePrefix) {
		return fmt.Errorf("%w: %q", ErrNotDebugImage, filename)
	}
	return removeRegularFile(path, filename)
}

func removeRegularFile(path, filename string) error {
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %q", ErrNotAFile, filename)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete %q: %w", filename, err)
	}
	slog.Info("deleted stored image", "filename", filename)
	return nil
}
