package extract_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"scanlapse/internal/extract"
	"scanlapse/internal/geometry"
	"scanlapse/internal/imaging"
	"scanlapse/internal/services"
	"scanlapse/internal/testsupport"
)

func twoRegionPlan(padding *geometry.Box) *geometry.Plan {
	return &geometry.Plan{
		Boxes: map[string]geometry.Box{
			"A": {X1: 0, Y1: 0, X2: 10, Y2: 10},
			"B": {X1: 35, Y1: 25, X2: 45, Y2: 35},
		},
		Order:    []string{"A", "B"},
		Polygons: map[string]geometry.Polygon{},
		Padding:  padding,
	}
}

func writeSources(t *testing.T, dir string, n int, ext string) []string {
	t.Helper()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("img_%02d%s", i, ext)
		path := filepath.Join(dir, names[i])
		testsupport.WriteImage(t, path, testsupport.GrayFrame(40, 30, 100,
			testsupport.Region{Rect: image.Rect(0, 0, 10, 10), Level: uint8(10 * (i + 1))}))
		testsupport.SetModTime(t, path, base.Add(time.Duration(i)*time.Hour))
	}
	return names
}

func TestRunWritesAllOutputs(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "original_images")
	names := writeSources(t, src, 4, ".tif")

	job := extract.Job{
		Root:      root,
		SourceDir: src,
		Sources:   names,
		Segments:  []extract.Segment{{Start: 0, Plan: twoRegionPlan(&geometry.Box{X1: 0, Y1: 0, X2: 20, Y2: 20}), Source: "layout.tsv"}},
	}
	report, err := extract.Run(context.Background(), job, extract.Options{Workers: 2, ResizeFactor: 0.5, PreserveTimestamps: true, JPEGQuality: 95})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Processed != 4 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	want := []string{"img_00_A.bmp", "img_01_A.bmp", "img_02_A.bmp", "img_03_A.bmp"}
	if diff := cmp.Diff(want, testsupport.ListNames(t, filepath.Join(root, "subImages", "A"))); diff != "" {
		t.Fatalf("sample A outputs (-want +got):\n%s", diff)
	}
	if got := testsupport.ListNames(t, filepath.Join(root, "cropped_ori")); len(got) != 4 || got[0] != "img_00_cropped.bmp" {
		t.Fatalf("unexpected padding copies %v", got)
	}
	if got := testsupport.ListNames(t, filepath.Join(root, "resized")); len(got) != 4 || got[3] != "img_03_resized.jpg" {
		t.Fatalf("unexpected resized copies %v", got)
	}

	crop, err := imaging.Decode(filepath.Join(root, "subImages", "A", "img_02_A.bmp"))
	if err != nil {
		t.Fatalf("decode crop: %v", err)
	}
	if got := imaging.Luminance(crop).At(5, 5); got != 30.0/255 {
		t.Fatalf("crop pixel %v want %v", got, 30.0/255)
	}
	// B reaches past the frame edge; the overflow is black.
	outer, err := imaging.Decode(filepath.Join(root, "subImages", "B", "img_00_B.bmp"))
	if err != nil {
		t.Fatalf("decode crop: %v", err)
	}
	luma := imaging.Luminance(outer)
	if luma.At(0, 0) != 100.0/255 || luma.At(9, 9) != 0 {
		t.Fatalf("unexpected edge crop values %v %v", luma.At(0, 0), luma.At(9, 9))
	}

	source := testsupport.ModTime(t, filepath.Join(src, "img_01.tif"))
	for _, rel := range []string{"subImages/B/img_01_B.bmp", "cropped_ori/img_01_cropped.bmp", "resized/img_01_resized.jpg"} {
		if got := testsupport.ModTime(t, filepath.Join(root, rel)); !got.Equal(source) {
			t.Fatalf("%s mtime %v want %v", rel, got, source)
		}
	}
}

func TestRunCollectsUnitErrors(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "original_images")
	names := writeSources(t, src, 3, ".png")
	testsupport.WriteFile(t, filepath.Join(src, names[2]), "not an image")

	job := extract.Job{Root: root, SourceDir: src, Sources: names,
		Segments: []extract.Segment{{Start: 0, Plan: twoRegionPlan(nil)}}}
	report, err := extract.Run(context.Background(), job, extract.Options{Workers: 2, JPEGQuality: 95})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Processed != 2 || report.Failed != 1 || len(report.Errors) != 1 || report.Errors[0].Source != "img_02.png" {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := testsupport.ListNames(t, filepath.Join(root, "subImages", "A")); len(got) != 2 {
		t.Fatalf("expected two crops, got %v", got)
	}
}

func TestRunAbortsOnFirstFrameFailure(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "original_images")
	names := writeSources(t, src, 3, ".png")
	testsupport.WriteFile(t, filepath.Join(src, names[0]), "not an image")

	job := extract.Job{Root: root, SourceDir: src, Sources: names,
		Segments: []extract.Segment{{Start: 0, Plan: twoRegionPlan(nil)}}}
	_, err := extract.Run(context.Background(), job, extract.Options{Workers: 2, JPEGQuality: 95})
	if !errors.Is(err, services.ErrUnit) {
		t.Fatalf("expected unit failure, got %v", err)
	}
}

func TestRunUsesGeometryPerSegment(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "original_images")
	names := writeSources(t, src, 4, ".bmp")

	moved := &geometry.Plan{
		Boxes:    map[string]geometry.Box{"A": {X1: 20, Y1: 10, X2: 30, Y2: 20}},
		Order:    []string{"A"},
		Polygons: map[string]geometry.Polygon{},
	}
	job := extract.Job{Root: root, SourceDir: src, Sources: names, Segments: []extract.Segment{
		{Start: 0, Plan: twoRegionPlan(nil)},
		{Start: 2, Plan: moved},
	}}
	report, err := extract.Run(context.Background(), job, extract.Options{Workers: 3, JPEGQuality: 95})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Processed != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := testsupport.ListNames(t, filepath.Join(root, "subImages", "B")); len(got) != 2 {
		t.Fatalf("B exists only in the first segment, got %v", got)
	}
	late, err := imaging.Decode(filepath.Join(root, "subImages", "A", "img_03_A.bmp"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := imaging.Luminance(late).At(0, 0); got != 100.0/255 {
		t.Fatalf("second segment should crop background, got %v", got)
	}
}

func TestRunRejectsBadSegments(t *testing.T) {
	job := extract.Job{Sources: []string{"a.png"}, Segments: []extract.Segment{{Start: 1, Plan: twoRegionPlan(nil)}}}
	if _, err := extract.Run(context.Background(), job, extract.Options{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestFolders(t *testing.T) {
	got := extract.Folders([]string{"A", "B"}, true, false, 0.35)
	want := []string{filepath.Join("subImages", "A"), filepath.Join("subImages", "B"), "cropped_ori", "resized"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Folders (-want +got):\n%s", diff)
	}
	if got := extract.Folders([]string{"A"}, true, true, 0); len(got) != 1 {
		t.Fatalf("cropped source and no resize should only create sample folders, got %v", got)
	}
}
