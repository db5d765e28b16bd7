package platespec_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scanlapse/internal/platespec"
	"scanlapse/internal/services"
	"scanlapse/internal/testsupport"
)

const combined = "# plate 1\n" +
	"CornerSize\tx\ty\tsize\t# upper left corner\n" +
	"TL\t420\t350\t1040\n" +
	"\"TR\"\t1460\t350\t1040\n" +
	"\n" +
	"WidthHeight\tx\ty\tw\th\n" +
	"ML\t90\t1390\t1000\t1040\n" +
	"removePadding\t52\t360\t2448\t3080\t# scanner border\n" +
	"Polygon\n" +
	"BL\tmakePolygon(852,588,660,1184,1288,1216);\n" +
	"END_POSITION\t# DO NOT DELETE\n" +
	"\n" +
	"sampleInfo\tstrain\tmeasure\tcolour\n" +
	"TL\tM145_MM\tcircle\tfirebrick\n" +
	"TR\tM145_JA\tsquare\n" +
	"ML\tdrag_MM\tcentreDisk\troyalblue\t# trailing note\n" +
	"BL\tdrag_JA\tpolygon\ttomato\n" +
	"END_INFO\n" +
	"ignored\tafter\tend\n"

func TestParseLayoutCombinedFile(t *testing.T) {
	layout, err := platespec.ParseLayout(strings.NewReader(combined), "plate.tsv")
	if err != nil {
		t.Fatalf("ParseLayout: %v", err)
	}
	if diff := cmp.Diff([]string{"TL", "TR", "ML", "BL"}, layout.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{420, 350, 1040}, layout.Records[0].Values); diff != "" {
		t.Fatalf("TL values mismatch (-want +got):\n%s", diff)
	}
	wantPoly := []platespec.Point{{X: 852, Y: 588}, {X: 660, Y: 1184}, {X: 1288, Y: 1216}}
	if diff := cmp.Diff(wantPoly, layout.Records[3].Vertices); diff != "" {
		t.Fatalf("polygon mismatch (-want +got):\n%s", diff)
	}
	if layout.Padding == nil {
		t.Fatal("expected padding record")
	}
	if layout.Padding.Kind != platespec.KindWidthHeight {
		t.Fatalf("padding should carry the WidthHeight representation, got %s", layout.Padding.Kind)
	}
	if diff := cmp.Diff([]int{52, 360, 2448, 3080}, layout.Padding.Values); diff != "" {
		t.Fatalf("padding mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSamplesCombinedFile(t *testing.T) {
	table, err := platespec.ParseSamples(strings.NewReader(combined), "plate.tsv")
	if err != nil {
		t.Fatalf("ParseSamples: %v", err)
	}
	if diff := cmp.Diff([]string{"TL", "TR", "ML", "BL"}, table.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	tl, _ := table.Lookup("TL")
	if tl.Measure != platespec.MeasureDisk || tl.Colour() != "firebrick" || tl.Group("strain") != "M145_MM" {
		t.Fatalf("unexpected TL sample %+v", tl)
	}
	tr, _ := table.Lookup("TR")
	if tr.Measure != platespec.MeasureSquare {
		t.Fatalf("unexpected TR measure %s", tr.Measure)
	}
	if _, ok := tr.Get("colour"); ok {
		t.Fatal("missing optional column should be unset")
	}
	ml, _ := table.Lookup("ML")
	if ml.Measure != platespec.MeasureDisk {
		t.Fatalf("centreDisk should map to disk, got %s", ml.Measure)
	}
	if diff := cmp.Diff([]string{"strain"}, table.Levels()); diff != "" {
		t.Fatalf("levels mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLayoutErrors(t *testing.T) {
	cases := map[string]string{
		"row before keyword":      "TL\t1\t2\t3\n",
		"padding after corner":    "CornerSize\nTL\t1\t2\t3\nremovePadding\t1\t2\t3\t4\n",
		"padding first":           "removePadding\t1\t2\t3\t4\nCornerSize\nTL\t1\t2\t3\n",
		"row under padding":       "TwoPositions\nA\t1\t2\t3\t4\nremovePadding\t1\t2\t3\t4\nB\t1\t2\t3\t4\n",
		"non integer":             "CornerSize\nTL\t1\tx\t3\n",
		"too few values":          "WidthHeight\nTL\t1\t2\t3\n",
		"duplicate region":        "CornerSize\nTL\t1\t2\t3\nTL\t4\t5\t6\n",
		"polygon two vertices":    "Polygon\nP\tmakePolygon(1,2,3,4);\n",
		"polygon bad token":       "Polygon\nP\tpolygon(1,2,3,4,5,6)\n",
		"polygon odd coordinates": "Polygon\nP\tmakePolygon(1,2,3,4,5,6,7)\n",
		"empty":                   "# nothing\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := platespec.ParseLayout(strings.NewReader(body), "bad.tsv")
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if name != "empty" && !strings.Contains(err.Error(), "bad.tsv:") {
				t.Fatalf("expected file:line in %q", err.Error())
			}
		})
	}
}

func TestParseSamplesErrors(t *testing.T) {
	cases := map[string]string{
		"no header":       "TL\tdisk\n",
		"no measure":      "sampleInfo\tstrain\nTL\tA\nEND_INFO\n",
		"unknown measure": "sampleInfo\tmeasure\nTL\thexagon\nEND_INFO\n",
		"missing measure": "sampleInfo\tstrain\tmeasure\nTL\tA\nEND_INFO\n",
		"duplicate":       "sampleInfo\tmeasure\nTL\tdisk\nTL\tsquare\nEND_INFO\n",
		"too many values": "sampleInfo\tmeasure\nTL\tdisk\textra\nEND_INFO\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := platespec.ParseSamples(strings.NewReader(body), "s.tsv"); !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plate.tsv")
	testsupport.WriteFile(t, path, combined)
	if _, err := platespec.LoadLayout(path); err != nil {
		t.Fatalf("LoadLayout: %v", err)
	}
	if _, err := platespec.LoadSamples(path); err != nil {
		t.Fatalf("LoadSamples: %v", err)
	}
	if _, err := platespec.LoadLayout(filepath.Join(t.TempDir(), "missing.tsv")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing file, got %v", err)
	}
}

func TestGroupFallsBackToSampleID(t *testing.T) {
	s := platespec.Sample{ID: "S9"}
	if got := s.Group("strain"); got != "S9" {
		t.Fatalf("unexpected group %q", got)
	}
}
