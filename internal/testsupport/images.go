package testsupport

import (
	"image"
	"image/color"
	"testing"

	"scanlapse/internal/imaging"
)

// Region paints a rectangle of a frame with a gray level.
type Region struct {
	Rect  image.Rectangle
	Level uint8
}

// GrayFrame builds a w×h gray frame filled with background and the given
// regions painted on top in order.
func GrayFrame(w, h int, background uint8, regions ...Region) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = background
	}
	for _, r := range regions {
		area := r.Rect.Intersect(img.Bounds())
		for y := area.Min.Y; y < area.Max.Y; y++ {
			for x := area.Min.X; x < area.Max.X; x++ {
				img.SetGray(x, y, color.Gray{Y: r.Level})
			}
		}
	}
	return img
}

// WriteImage encodes img to path, picking the codec from the extension.
func WriteImage(t testing.TB, path string, img image.Image) {
	t.Helper()
	if err := imaging.Save(path, img, 95); err != nil {
		t.Fatalf("write image %s: %v", path, err)
	}
}
