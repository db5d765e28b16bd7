package resultstore_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"scanlapse/internal/aggregate"
	"scanlapse/internal/resultstore"
)

func sampleTable() *aggregate.Table {
	return &aggregate.Table{
		Samples: []string{"A", "B"},
		Rows: []aggregate.Row{
			{Time: 0, Values: []float64{0.25, 0.5}},
			{Time: 1.5, Values: []float64{0.75, math.NaN()}},
		},
	}
}

func sampleSummary() *aggregate.GroupTable {
	return &aggregate.GroupTable{
		Level:  "genotype",
		Groups: []string{"wt"},
		Rows: []aggregate.GroupRow{
			{Time: 0, Mean: []float64{0.375}, StdErr: []float64{0.125}, N: []int{2}},
			{Time: 1.5, Mean: []float64{0.75}, StdErr: []float64{math.NaN()}, N: []int{1}},
		},
	}
}

func openStore(t *testing.T, root string) *resultstore.Store {
	t.Helper()
	store, err := resultstore.Open(context.Background(), root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLoadLatest(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, t.TempDir())

	if snap, err := store.Latest(ctx); err != nil || snap != nil {
		t.Fatalf("empty store: %v %v", snap, err)
	}
	if _, ok, err := store.LatestInfo(ctx); err != nil || ok {
		t.Fatalf("empty store info: ok=%v err=%v", ok, err)
	}

	err := store.Save(ctx, resultstore.Snapshot{
		RunID: "run-1", Fingerprint: "abc", Normalization: "none",
		Table: sampleTable(), Summary: sampleSummary(),
	}, 0)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if snap.RunID != "run-1" || snap.Fingerprint != "abc" || snap.CreatedAt.IsZero() {
		t.Fatalf("unexpected snapshot header %+v", snap)
	}
	if diff := cmp.Diff(sampleTable(), snap.Table, cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("table (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(sampleSummary(), snap.Summary, cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("summary (-want +got):\n%s", diff)
	}

	info, ok, err := store.LatestInfo(ctx)
	if err != nil || !ok {
		t.Fatalf("LatestInfo: ok=%v err=%v", ok, err)
	}
	if info.Rows != 2 || info.Samples != 2 || info.Fingerprint != "abc" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestSaveKeepsNewestRuns(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := openStore(t, root)
	for _, id := range []string{"r1", "r2", "r3"} {
		if err := store.Save(ctx, resultstore.Snapshot{RunID: id, Fingerprint: id, Normalization: "none", Table: sampleTable()}, 2); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	info, _, err := store.LatestInfo(ctx)
	if err != nil || info.RunID != "r3" {
		t.Fatalf("latest = %+v err %v", info, err)
	}
	snap, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if snap.Summary != nil {
		t.Fatalf("run without summary loaded one: %+v", snap.Summary)
	}

	// Reopening sees the same data.
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	again := openStore(t, root)
	if info, ok, _ := again.LatestInfo(ctx); !ok || info.RunID != "r3" {
		t.Fatalf("reopened latest = %+v", info)
	}
}

func TestSaveRejectsNilTable(t *testing.T) {
	store := openStore(t, t.TempDir())
	if err := store.Save(context.Background(), resultstore.Snapshot{RunID: "x"}, 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenRejectsForeignSchema(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := openStore(t, root)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := resultstore.SetSchemaVersionForTest(ctx, root, 99); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if _, err := resultstore.Open(ctx, root); !errors.Is(err, resultstore.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestExportTSV(t *testing.T) {
	dir := t.TempDir()
	paths, err := resultstore.ExportTSV(dir, sampleTable(), sampleSummary())
	if err != nil {
		t.Fatalf("ExportTSV: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected two files, got %v", paths)
	}
	data, err := os.ReadFile(filepath.Join(dir, resultstore.MeasurementsFile))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "time_hours\tA\tB\n0\t0.25\t0.5\n1.5\t0.75\t\n"
	if string(data) != want {
		t.Fatalf("measurements.tsv = %q want %q", data, want)
	}
	summary, err := os.ReadFile(filepath.Join(dir, resultstore.SummaryFile))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(summary)), "\n")
	if lines[0] != "time_hours\twt_mean\twt_sem\twt_n" || lines[2] != "1.5\t0.75\t\t1" {
		t.Fatalf("unexpected summary export %q", summary)
	}
}
