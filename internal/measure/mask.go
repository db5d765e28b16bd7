package measure

import (
	"fmt"
	"math"

	"scanlapse/internal/imaging"
	"scanlapse/internal/platespec"
)

// Mask selects pixels of a w×h image.
type Mask struct {
	Width, Height int
	bits          []bool
}

func newMask(w, h int) *Mask {
	return &Mask{Width: w, Height: h, bits: make([]bool, w*h)}
}

// Contains reports whether (x, y) is selected.
func (m *Mask) Contains(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.bits[y*m.Width+x]
}

// Count returns the number of selected pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// DiskMask selects pixels strictly inside a centred circle whose radius is
// pct of half the shorter side.
func DiskMask(w, h int, pct float64) *Mask {
	m := newMask(w, h)
	cx, cy := float64(w)/2, float64(h)/2
	r := pct * float64(min(w, h)) / 2
	r2 := r * r
	for y := 0; y < h; y++ {
		dy := float64(y) - cy
		for x := 0; x < w; x++ {
			dx := float64(x) - cx
			if dx*dx+dy*dy < r2 {
				m.bits[y*w+x] = true
			}
		}
	}
	return m
}

// SquareMask selects a centred square whose side is pct of the width.
func SquareMask(w, h int, pct float64) *Mask {
	m := newMask(w, h)
	side := int(math.Round(pct * float64(w)))
	x0 := (w - side) / 2
	y0 := (h - side) / 2
	for y := max(0, y0); y < min(h, y0+side); y++ {
		for x := max(0, x0); x < min(w, x0+side); x++ {
			m.bits[y*w+x] = true
		}
	}
	return m
}

// PolygonMask selects pixels inside vertices under the even-odd rule after
// rebasing the vertices so their minimum x and y are zero.
func PolygonMask(w, h int, vertices []platespec.Point) *Mask {
	m := newMask(w, h)
	if len(vertices) < 3 {
		return m
	}
	minX, minY := vertices[0].X, vertices[0].Y
	for _, v := range vertices[1:] {
		minX = min(minX, v.X)
		minY = min(minY, v.Y)
	}
	xs := make([]float64, len(vertices))
	ys := make([]float64, len(vertices))
	for i, v := range vertices {
		xs[i] = float64(v.X - minX)
		ys[i] = float64(v.Y - minY)
	}
	for y := 0; y < h; y++ {
		py := float64(y)
		for x := 0; x < w; x++ {
			if insideEvenOdd(xs, ys, float64(x), py) {
				m.bits[y*w+x] = true
			}
		}
	}
	return m
}

func insideEvenOdd(xs, ys []float64, px, py float64) bool {
	inside := false
	j := len(xs) - 1
	for i := range xs {
		if (ys[i] > py) != (ys[j] > py) {
			crossX := xs[i] + (py-ys[i])*(xs[j]-xs[i])/(ys[j]-ys[i])
			if px < crossX {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// MaskedMean averages luma over the selected pixels.
func MaskedMean(luma *imaging.Luma, m *Mask) (float64, error) {
	if luma.Width != m.Width || luma.Height != m.Height {
		return 0, fmt.Errorf("mask %dx%d does not match image %dx%d", m.Width, m.Height, luma.Width, luma.Height)
	}
	sum, n := 0.0, 0
	for i, selected := range m.bits {
		if selected {
			sum += luma.Pix[i]
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("region of interest selects no pixels in a %dx%d image", m.Width, m.Height)
	}
	return sum / float64(n), nil
}
