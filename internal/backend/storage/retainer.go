package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// Retainer keeps a bounded, newest-first history of comparison images tagged with their score
type Retainer struct {
	catalog  *Catalog
	capacity int
	now      func() time.Time

	mu    sync.Mutex
	index []DebugRecord
}

// NewRetainer creates a retainer over the catalog's directory keeping at most MaxDebugImages
func NewRetainer(catalog *Catalog) *Retainer {
	r := &Retainer{
		catalog:  catalog,
		capacity: MaxDebugImages,
		now:      time.Now,
	}
	if records, err := catalog.ListDebug(); err != nil {
		slog.Warn("failed to index existing debug images", "error", err)
	} else {
		r.index = records
	}
	return r
}

// Records returns the in-memory index of retained images, newest first
func (r *Retainer) Records() []DebugRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.index)
}

// Retain copies the image at imagePath into the history under a name carrying
// the capture time and score, then prunes the oldest records beyond capacity.
// Nothing happens when enabled is false.
func (r *Retainer) Retain(imagePath string, score float64, enabled bool) error {
	if !enabled {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	filename := DebugFilename(r.now(), score)
	target := filepath.Join(r.catalog.Directory(), filename)
	if err := copyFile(imagePath, target); err != nil {
		return fmt.Errorf("failed to store debug image %s: %w", filename, err)
	}
	slog.Info("stored debug image", "filename", filename, "similarity", score)

	records, err := r.catalog.ListDebug()
	if err != nil {
		return err
	}

	if len(records) > r.capacity {
		for _, old := range records[r.capacity:] {
			if err := os.Remove(filepath.Join(r.catalog.Directory(), old.Filename)); err != nil {
				slog.Error("error deleting old debug image", "filename", old.Filename, "error", err)
				continue
			}
			slog.Info("deleted old debug image", "filename", old.Filename)
		}
		records = records[:r.capacity]
	}
	r.index = records

	return nil
}

// copyFile copies src to dst, keeping src's modification time
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
