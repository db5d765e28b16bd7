package rename_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"scanlapse/internal/rename"
	"scanlapse/internal/services"
	"scanlapse/internal/testsupport"
)

func seedSeries(t *testing.T, dir string, names ...string) map[string]time.Time {
	t.Helper()
	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.Local)
	times := make(map[string]time.Time, len(names))
	for i, name := range names {
		path := filepath.Join(dir, name)
		testsupport.WriteFile(t, path, "frame "+name)
		ts := base.Add(time.Duration(i) * time.Hour)
		testsupport.SetModTime(t, path, ts)
		times[name] = ts
	}
	return times
}

func TestCanonicalizeAndRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	names := []string{"img_2.tif", "img_3.tif", "img_4.tif", "img_10.tif", "img_11.tif"}
	times := seedSeries(t, dir, names...)

	m := rename.New(dir, rename.Options{ScannerOffset: 1})
	log, err := m.Canonicalize(context.Background())
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	wantMap := map[string]string{
		"img_2.tif":  "img_01.tif",
		"img_3.tif":  "img_02.tif",
		"img_4.tif":  "img_03.tif",
		"img_10.tif": "img_09.tif",
		"img_11.tif": "img_10.tif",
	}
	if diff := cmp.Diff(wantMap, log.Old2New); diff != "" {
		t.Fatalf("mapping mismatch (-want +got):\n%s", diff)
	}
	archived := testsupport.ListNames(t, filepath.Join(dir, "original_images"))
	if diff := cmp.Diff([]string{"img_01.tif", "img_02.tif", "img_03.tif", "img_09.tif", "img_10.tif"}, archived); diff != "" {
		t.Fatalf("archive mismatch (-want +got):\n%s", diff)
	}
	if state, _ := rename.StateOf(dir); state != rename.StateCanonical {
		t.Fatalf("expected canonical state, got %s", state)
	}

	// Disturb modification times so Restore has to put them back.
	for _, p := range log.Pairs() {
		testsupport.SetModTime(t, filepath.Join(dir, "original_images", p.Canonical), time.Now())
	}

	if _, err := m.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	for name, ts := range times {
		path := filepath.Join(dir, name)
		if got := testsupport.ModTime(t, path); !got.Equal(ts) {
			t.Fatalf("%s: mod time %v want %v", name, got, ts)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != "frame "+name {
			t.Fatalf("%s has wrong content %q", name, data)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "original_images")); !os.IsNotExist(err) {
		t.Fatalf("expected archive removed, stat err=%v", err)
	}
	if state, _ := rename.StateOf(dir); state != rename.StateOriginal {
		t.Fatalf("expected original state, got %s", state)
	}

	again, err := m.Canonicalize(context.Background())
	if err != nil {
		t.Fatalf("re-canonicalize: %v", err)
	}
	if diff := cmp.Diff(wantMap, again.Old2New); diff != "" {
		t.Fatalf("replayed mapping differs (-want +got):\n%s", diff)
	}
	for name, ts := range times {
		if got := again.CaptureTimes[name]; !got.Equal(ts) {
			t.Fatalf("capture time of %s changed: %v want %v", name, got, ts)
		}
	}
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	seedSeries(t, dir, "scan1.jpg", "scan2.jpg")
	m := rename.New(dir, rename.Options{ScannerOffset: 1})
	first, err := m.Canonicalize(context.Background())
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	second, err := m.Canonicalize(context.Background())
	if err != nil {
		t.Fatalf("second Canonicalize: %v", err)
	}
	if diff := cmp.Diff(first.Old2New, second.Old2New); diff != "" {
		t.Fatalf("mapping changed (-first +second):\n%s", diff)
	}
}

func TestCanonicalizeStagesCollidingTargets(t *testing.T) {
	dir := t.TempDir()
	// A negative offset shifts every frame onto its successor's name, so
	// a01 -> a02 and a02 -> a03 must be staged until the batch completes.
	seedSeries(t, dir, "a01.png", "a02.png", "a03.png")
	m := rename.New(dir, rename.Options{ScannerOffset: -1})
	log, err := m.Canonicalize(context.Background())
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	for oldName, newName := range log.Old2New {
		data, err := os.ReadFile(filepath.Join(dir, "original_images", newName))
		if err != nil {
			t.Fatalf("read %s: %v", newName, err)
		}
		if string(data) != "frame "+oldName {
			t.Fatalf("%s holds %q, want content of %s", newName, data, oldName)
		}
	}
	for _, name := range testsupport.ListNames(t, dir) {
		if strings.HasSuffix(name, rename.TempSuffix) {
			t.Fatalf("staged file left behind: %s", name)
		}
	}
}

func TestCanonicalizeSkipsForeignPrefix(t *testing.T) {
	dir := t.TempDir()
	seedSeries(t, dir, "img_2.tif", "img_3.tif", "img_4.tif", "calib.tif")
	log, err := rename.New(dir, rename.Options{ScannerOffset: 1}).Canonicalize(context.Background())
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if len(log.Old2New) != 3 {
		t.Fatalf("expected 3 mapped files, got %v", log.Old2New)
	}
	if _, err := os.Stat(filepath.Join(dir, "calib.tif")); err != nil {
		t.Fatalf("foreign file should stay in place: %v", err)
	}
}

func TestCanonicalizeRejectsNegativeIndexBeforeMutation(t *testing.T) {
	dir := t.TempDir()
	seedSeries(t, dir, "img_0.tif", "img_1.tif")
	_, err := rename.New(dir, rename.Options{ScannerOffset: 1}).Canonicalize(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if diff := cmp.Diff([]string{"img_0.tif", "img_1.tif"}, testsupport.ListNames(t, dir)); diff != "" {
		t.Fatalf("directory was mutated (-want +got):\n%s", diff)
	}
}

func TestPlanLeavesDirectoryAndReusesChoice(t *testing.T) {
	dir := t.TempDir()
	seedSeries(t, dir, "img_2.tif", "img_3.tif", "scan_2.tif", "scan_3.tif")
	asked := 0
	chooser := rename.ChooserFunc(func(kind rename.AmbiguityKind, candidates []string) (string, error) {
		asked++
		return "img_", nil
	})
	m := rename.New(dir, rename.Options{ScannerOffset: 1, Chooser: chooser})

	planned, err := m.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := map[string]string{"img_2.tif": "img_01.tif", "img_3.tif": "img_02.tif"}
	if diff := cmp.Diff(want, planned.Old2New); diff != "" {
		t.Fatalf("planned mapping mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"img_2.tif", "img_3.tif", "scan_2.tif", "scan_3.tif"}, testsupport.ListNames(t, dir)); diff != "" {
		t.Fatalf("Plan mutated the directory (-want +got):\n%s", diff)
	}

	log, err := m.Canonicalize(context.Background())
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if diff := cmp.Diff(want, log.Old2New); diff != "" {
		t.Fatalf("applied mapping mismatch (-want +got):\n%s", diff)
	}
	if asked != 1 {
		t.Fatalf("expected one prefix choice, got %d", asked)
	}

	again, err := m.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan after Canonicalize: %v", err)
	}
	if diff := cmp.Diff(want, again.Old2New); diff != "" {
		t.Fatalf("logged mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestCanonicalizeRejectsDuplicateTargets(t *testing.T) {
	dir := t.TempDir()
	seedSeries(t, dir, "img_2.tif", "img_02.tif")
	_, err := rename.New(dir, rename.Options{ScannerOffset: 1}).Canonicalize(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRestoreRequiresCanonicalState(t *testing.T) {
	dir := t.TempDir()
	seedSeries(t, dir, "img_2.tif")
	_, err := rename.New(dir, rename.Options{}).Restore(context.Background())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInterruptedBatchIsResumed(t *testing.T) {
	dir := t.TempDir()
	seedSeries(t, dir, "img_2.tif", "img_3.tif")

	// Simulate a crash after the first rename of a journaled batch.
	journal := `{
  "version": 1,
  "op": "canonicalize",
  "phases": [
    [{"from": "img_2.tif", "to": "img_01.tif"}, {"from": "img_3.tif", "to": "img_02.tif"}],
    [{"from": "img_01.tif", "to": "original_images/img_01.tif"}, {"from": "img_02.tif", "to": "original_images/img_02.tif"}]
  ],
  "result": {
    "version": 1,
    "state": "canonical",
    "extension": ".tif",
    "prefix": "img_",
    "digits": 2,
    "archive": "original_images",
    "old_to_new": {"img_2.tif": "img_01.tif", "img_3.tif": "img_02.tif"},
    "capture_times": {"img_2.tif": "2024-03-04T10:00:00Z", "img_3.tif": "2024-03-04T11:00:00Z"},
    "updated_at": "2024-03-04T12:00:00Z"
  }
}`
	testsupport.WriteFile(t, filepath.Join(dir, rename.JournalFileName), journal)
	if err := os.Rename(filepath.Join(dir, "img_2.tif"), filepath.Join(dir, "img_01.tif")); err != nil {
		t.Fatal(err)
	}

	log, err := rename.New(dir, rename.Options{ScannerOffset: 1}).Canonicalize(context.Background())
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if log.State != rename.StateCanonical {
		t.Fatalf("unexpected state %s", log.State)
	}
	if diff := cmp.Diff([]string{"img_01.tif", "img_02.tif"}, testsupport.ListNames(t, filepath.Join(dir, "original_images"))); diff != "" {
		t.Fatalf("archive mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, rename.JournalFileName)); !os.IsNotExist(err) {
		t.Fatalf("journal should be removed, stat err=%v", err)
	}
}

func TestStaleTempIsCompletedWhenFinalIsFree(t *testing.T) {
	dir := t.TempDir()
	seedSeries(t, dir, "img_2.tif", "img_3.tif")
	testsupport.WriteFile(t, filepath.Join(dir, "img_4.tif"+rename.TempSuffix), "frame img_4.tif")

	log, err := rename.New(dir, rename.Options{ScannerOffset: 1}).Canonicalize(context.Background())
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if _, ok := log.Old2New["img_4.tif"]; !ok {
		t.Fatalf("expected swept temp to join the series, got %v", log.Old2New)
	}
}

func TestWriteScanLogSortedAndNotOverwritten(t *testing.T) {
	dir := t.TempDir()
	seedSeries(t, dir, "img_3.tif", "img_2.tif")
	log, err := rename.New(dir, rename.Options{ScannerOffset: 1}).Canonicalize(context.Background())
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	path, err := rename.WriteScanLog(dir, log)
	if err != nil {
		t.Fatalf("WriteScanLog: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "scanLog04_March_2024-04_March_2024") {
		t.Fatalf("unexpected scan log name %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "old_name\tnew_name\tweek_day\tdate\tscan_time" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "img_2.tif\timg_01.tif\tMonday\t04 March 2024\t") {
		t.Fatalf("unexpected first row %q", lines[1])
	}

	testsupport.WriteFile(t, path, "kept")
	if _, err := rename.WriteScanLog(dir, log); err != nil {
		t.Fatalf("second WriteScanLog: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "kept" {
		t.Fatalf("scan log was overwritten: %q", data)
	}
}
