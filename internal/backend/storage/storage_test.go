package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestCatalog(t *testing.T) (*Catalog, string) {
	t.Helper()
	root := t.TempDir()
	catalog, err := NewCatalog(filepath.Join(root, "data"))
	if err != nil {
		t.Fatalf("NewCatalog error: %v", err)
	}
	return catalog, root
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestCatalog_List(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	dir := catalog.Directory()

	for _, name := range []string{
		"bed.jpg",
		ReferenceFilename,
		TestFilename,
		ComparisonFilename,
		"notes.txt",
		"photo.jpeg",
		DebugImagePrefix + "20250101_101010_0_9900.jpg",
	} {
		writeFile(t, dir, name, "x")
	}
	if err := os.Mkdir(filepath.Join(dir, "folder.jpg"), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	snapshots, err := catalog.List()
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	expected := []string{"bed.jpg", ReferenceFilename}
	if !reflect.DeepEqual(snapshots, expected) {
		t.Errorf("expected %v, got %v", expected, snapshots)
	}
}

func TestCatalog_ListDebug_NewestFirstSkippingMalformed(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	dir := catalog.Directory()

	writeFile(t, dir, DebugImagePrefix+"20250101_101010_0_9900.jpg", "a")
	writeFile(t, dir, DebugImagePrefix+"20250102_080000_-3_4167.jpg", "b")
	writeFile(t, dir, DebugImagePrefix+"garbage.jpg", "c")
	writeFile(t, dir, DebugImagePrefix+"20250103_080000_0_99.jpg", "d")
	writeFile(t, dir, DebugImagePrefix+"20251399_080000_0_9900.jpg", "e")

	records, err := catalog.ListDebug()
	if err != nil {
		t.Fatalf("ListDebug error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}
	if records[0].Timestamp != "20250102_080000" || records[0].Threshold != -3.4167 {
		t.Errorf("unexpected newest record %+v", records[0])
	}
	if records[1].Timestamp != "20250101_101010" || records[1].Threshold != 0.99 {
		t.Errorf("unexpected oldest record %+v", records[1])
	}
}

func TestDebugFilename_RoundTrip(t *testing.T) {
	capturedAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)

	tests := []struct {
		score    float64
		filename string
		parsed   float64
	}{
		{0.98421, "debug_comparison_20250102_030405_0_9842.jpg", 0.9842},
		{1, "debug_comparison_20250102_030405_1_0000.jpg", 1},
		{-3.41667, "debug_comparison_20250102_030405_-3_4167.jpg", -3.4167},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := DebugFilename(capturedAt, tt.score)
			if got != tt.filename {
				t.Fatalf("DebugFilename = %q, want %q", got, tt.filename)
			}
			record, ok := ParseDebugFilename(got)
			if !ok {
				t.Fatalf("ParseDebugFilename(%q) failed", got)
			}
			if record.Threshold != tt.parsed {
				t.Errorf("threshold = %v, want %v", record.Threshold, tt.parsed)
			}
			if !record.CapturedAt.Equal(capturedAt) {
				t.Errorf("captured at = %v, want %v", record.CapturedAt, capturedAt)
			}
		})
	}
}

func TestCatalog_DeleteRejectsPathEscape(t *testing.T) {
	catalog, root := newTestCatalog(t)
	outside := writeFile(t, root, "victim.jpg", "keep me")
	writeFile(t, catalog.Directory(), DebugImagePrefix+"20250101_101010_0_9900.jpg", "x")

	inputs := []string{
		"../victim.jpg",
		"..",
		"sub/../../victim.jpg",
		`..\victim.jpg`,
		outside,
		"/victim.jpg",
		"../" + filepath.Base(catalog.Directory()) + "/../victim.jpg",
		"../" + DebugImagePrefix + "x.jpg",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			if err := catalog.Delete(input); !errors.Is(err, ErrPathEscape) {
				t.Errorf("Delete(%q) error = %v, want ErrPathEscape", input, err)
			}
			if err := catalog.DeleteDebug(input); !errors.Is(err, ErrPathEscape) {
				t.Errorf("DeleteDebug(%q) error = %v, want ErrPathEscape", input, err)
			}
		})
	}

	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("file outside the data directory was touched: %v", err)
	}
}

func TestCatalog_Delete(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	dir := catalog.Directory()
	writeFile(t, dir, "bed.jpg", "x")
	if err := os.Mkdir(filepath.Join(dir, "folder"), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	if err := catalog.Delete("bed.jpg"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bed.jpg")); !os.IsNotExist(err) {
		t.Errorf("expected bed.jpg to be removed, stat error: %v", err)
	}

	if err := catalog.Delete("bed.jpg"); !errors.Is(err, ErrNotAFile) {
		t.Errorf("expected ErrNotAFile for missing file, got %v", err)
	}
	if err := catalog.Delete("folder"); !errors.Is(err, ErrNotAFile) {
		t.Errorf("expected ErrNotAFile for directory, got %v", err)
	}
	if err := catalog.Delete(""); !errors.Is(err, ErrNotAFile) {
		t.Errorf("expected ErrNotAFile for empty name, got %v", err)
	}
}

func TestCatalog_DeleteDebug(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	dir := catalog.Directory()
	debugName := DebugImagePrefix + "20250101_101010_0_9900.jpg"
	writeFile(t, dir, debugName, "x")
	writeFile(t, dir, "bed.jpg", "x")

	if err := catalog.DeleteDebug("bed.jpg"); !errors.Is(err, ErrNotDebugImage) {
		t.Errorf("expected ErrNotDebugImage, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bed.jpg")); err != nil {
		t.Errorf("expected bed.jpg to survive: %v", err)
	}

	if err := catalog.DeleteDebug(DebugImagePrefix + "missing.jpg"); !errors.Is(err, ErrNotAFile) {
		t.Errorf("expected ErrNotAFile, got %v", err)
	}
	if err := catalog.DeleteDebug(debugName); err != nil {
		t.Fatalf("DeleteDebug error: %v", err)
	}
	records, err := catalog.ListDebug()
	if err != nil {
		t.Fatalf("ListDebug error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no debug records, got %+v", records)
	}
}

func TestRetainer_DisabledIsNoOp(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	source := writeFile(t, catalog.Directory(), ComparisonFilename, "image")

	retainer := NewRetainer(catalog)
	if err := retainer.Retain(source, 0.99, false); err != nil {
		t.Fatalf("Retain error: %v", err)
	}
	records, err := catalog.ListDebug()
	if err != nil {
		t.Fatalf("ListDebug error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected nothing retained, got %+v", records)
	}
}

func TestRetainer_KeepsNewestFive(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	source := writeFile(t, catalog.Directory(), ComparisonFilename, "comparison bytes")

	retainer := NewRetainer(catalog)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	calls := 0
	retainer.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}

	for i := 0; i < 8; i++ {
		if err := retainer.Retain(source, 0.9+float64(i)/100, true); err != nil {
			t.Fatalf("Retain #%d error: %v", i, err)
		}
		records, err := catalog.ListDebug()
		if err != nil {
			t.Fatalf("ListDebug error: %v", err)
		}
		if len(records) > MaxDebugImages {
			t.Fatalf("after retain #%d: %d records exceed capacity", i, len(records))
		}
	}

	records, err := catalog.ListDebug()
	if err != nil {
		t.Fatalf("ListDebug error: %v", err)
	}
	if len(records) != MaxDebugImages {
		t.Fatalf("expected %d records, got %d", MaxDebugImages, len(records))
	}
	for i, record := range records {
		want := base.Add(time.Duration(8-i) * time.Minute)
		if !record.CapturedAt.Equal(want) {
			t.Errorf("record %d captured at %v, want %v", i, record.CapturedAt, want)
		}
	}
	if !reflect.DeepEqual(retainer.Records(), records) {
		t.Errorf("in-memory index %+v does not match disk %+v", retainer.Records(), records)
	}

	content, err := os.ReadFile(filepath.Join(catalog.Directory(), records[0].Filename))
	if err != nil {
		t.Fatalf("failed to read retained image: %v", err)
	}
	if string(content) != "comparison bytes" {
		t.Errorf("retained image content mismatch: %q", content)
	}
	if _, err := os.Stat(source); err != nil {
		t.Errorf("expected the comparison image to be copied, not moved: %v", err)
	}
}

func TestRetainer_MissingSource(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	retainer := NewRetainer(catalog)
	if err := retainer.Retain(filepath.Join(catalog.Directory(), "missing.jpg"), 0.5, true); err == nil {
		t.Fatal("expected error for missing source image")
	}
}
