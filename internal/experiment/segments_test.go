package experiment_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scanlapse/internal/experiment"
	"scanlapse/internal/rename"
	"scanlapse/internal/services"
)

var pairs = []rename.Pair{
	{Original: "img_2.tif", Canonical: "img_00.tif"},
	{Original: "img_3.tif", Canonical: "img_01.tif"},
	{Original: "img_4.tif", Canonical: "img_02.tif"},
	{Original: "img_5.tif", Canonical: "img_03.tif"},
	{Original: "img_6.tif", Canonical: "img_04.tif"},
}

func TestParseSegmentFlag(t *testing.T) {
	got, err := experiment.ParseSegmentFlag(" img_4.tif = late.tsv ")
	if err != nil {
		t.Fatalf("ParseSegmentFlag: %v", err)
	}
	if diff := cmp.Diff(experiment.SegmentSpec{Start: "img_4.tif", File: "late.tsv"}, got); diff != "" {
		t.Fatalf("segment mismatch (-want +got):\n%s", diff)
	}
	for _, bad := range []string{"late.tsv", "=late.tsv", "3=", ""} {
		if _, err := experiment.ParseSegmentFlag(bad); !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("%q: expected configuration error, got %v", bad, err)
		}
	}
}

func TestResolveSegmentsMatchesNamesThenIndex(t *testing.T) {
	extra := []experiment.SegmentSpec{
		{Start: "img_03.tif", File: "c.tsv"},
		{Start: "img_3.tif", File: "b.tsv"},
		{Start: "4", File: "d.tsv"},
	}
	got, err := experiment.ResolveSegments("a.tsv", extra, pairs)
	if err != nil {
		t.Fatalf("ResolveSegments: %v", err)
	}
	want := []experiment.Segment{
		{Start: 0, File: "a.tsv"},
		{Start: 1, File: "b.tsv"},
		{Start: 3, File: "c.tsv"},
		{Start: 4, File: "d.tsv"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 1, 1}, experiment.Lengths(got, len(pairs))); diff != "" {
		t.Fatalf("lengths mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveSegmentsOriginalNameWinsOverIndex(t *testing.T) {
	odd := []rename.Pair{
		{Original: "0", Canonical: "f_0.tif"},
		{Original: "2", Canonical: "f_1.tif"},
		{Original: "1", Canonical: "f_2.tif"},
	}
	got, err := experiment.ResolveSegments("a.tsv", []experiment.SegmentSpec{{Start: "1", File: "b.tsv"}}, odd)
	if err != nil {
		t.Fatalf("ResolveSegments: %v", err)
	}
	if got[1].Start != 2 {
		t.Fatalf("expected original name match at frame 2, got %d", got[1].Start)
	}
}

func TestResolveSegmentsRejects(t *testing.T) {
	cases := map[string][]experiment.SegmentSpec{
		"unknown":      {{Start: "img_99.tif", File: "b.tsv"}},
		"out of range": {{Start: "5", File: "b.tsv"}},
		"first frame":  {{Start: "img_2.tif", File: "b.tsv"}},
		"duplicate": {
			{Start: "img_3.tif", File: "b.tsv"},
			{Start: "1", File: "c.tsv"},
		},
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := experiment.ResolveSegments("a.tsv", extra, pairs); !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}
