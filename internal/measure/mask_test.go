package measure_test

import (
	"testing"

	"scanlapse/internal/imaging"
	"scanlapse/internal/measure"
	"scanlapse/internal/platespec"
)

func TestDiskMaskCountsPixelsInsideRadius(t *testing.T) {
	m := measure.DiskMask(4, 4, 1)
	// Centre (2,2), radius 2: pixels strictly closer than 2.
	want := 0
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			dx, dy := x-2, y-2
			if dx*dx+dy*dy < 4 {
				want++
			}
		}
	}
	if got := m.Count(); got != want {
		t.Fatalf("Count = %d want %d", got, want)
	}
	if m.Contains(0, 0) || !m.Contains(2, 2) {
		t.Fatal("corner should be outside and centre inside")
	}
}

func TestDiskMaskUsesShorterSide(t *testing.T) {
	m := measure.DiskMask(20, 6, 1)
	if m.Contains(5, 3) || !m.Contains(8, 3) {
		t.Fatal("radius should follow the shorter side")
	}
}

func TestSquareMaskIsCentred(t *testing.T) {
	m := measure.SquareMask(10, 10, 0.4)
	if got := m.Count(); got != 16 {
		t.Fatalf("Count = %d want 16", got)
	}
	if !m.Contains(3, 3) || !m.Contains(6, 6) || m.Contains(2, 3) || m.Contains(7, 6) {
		t.Fatal("square should cover pixels 3..6")
	}
}

func TestPolygonMaskRebasesVertices(t *testing.T) {
	// A right triangle authored in frame coordinates far from the origin.
	vertices := []platespec.Point{{X: 100, Y: 200}, {X: 104, Y: 200}, {X: 100, Y: 204}}
	m := measure.PolygonMask(5, 5, vertices)
	if !m.Contains(1, 1) {
		t.Fatal("pixel near the right angle should be inside")
	}
	if m.Contains(3, 3) {
		t.Fatal("pixel beyond the hypotenuse should be outside")
	}
}

func TestMaskedMean(t *testing.T) {
	luma := &imaging.Luma{Width: 2, Height: 2, Pix: []float64{0.2, 0.4, 0.6, 0.8}}
	m := measure.SquareMask(2, 2, 1)
	got, err := measure.MaskedMean(luma, m)
	if err != nil {
		t.Fatalf("MaskedMean: %v", err)
	}
	if got < 0.4999999 || got > 0.5000001 {
		t.Fatalf("mean %v want 0.5", got)
	}
	if _, err := measure.MaskedMean(luma, measure.DiskMask(3, 3, 1)); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, err := measure.MaskedMean(&imaging.Luma{Width: 1, Height: 1, Pix: []float64{1}}, measure.SquareMask(1, 1, 0.1)); err == nil {
		t.Fatal("expected empty mask error")
	}
}
