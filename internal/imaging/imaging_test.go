package imaging_test

import (
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"scanlapse/internal/imaging"
)

func gray(w, h int, level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

func TestOutputExtFollowsSourceFormat(t *testing.T) {
	cases := map[string]string{".tif": ".bmp", ".TIFF": ".bmp", ".png": ".bmp", ".bmp": ".bmp", ".jpg": ".jpg", ".jpeg": ".jpg", ".gif": ".jpg"}
	for in, want := range cases {
		if got := imaging.OutputExt(in); got != want {
			t.Fatalf("OutputExt(%q) = %q want %q", in, got, want)
		}
	}
}

func TestCropFillsOutOfFrameWithBlack(t *testing.T) {
	src := gray(10, 10, 200)
	out := imaging.Crop(src, image.Rect(5, 5, 15, 15))
	if out.Bounds() != image.Rect(0, 0, 10, 10) {
		t.Fatalf("unexpected bounds %v", out.Bounds())
	}
	if c := color.GrayModel.Convert(out.At(0, 0)).(color.Gray); c.Y != 200 {
		t.Fatalf("inside pixel = %d want 200", c.Y)
	}
	if c := out.RGBAAt(9, 9); c.R != 0 || c.G != 0 || c.B != 0 || c.A != 0xff {
		t.Fatalf("outside pixel should be opaque black, got %+v", c)
	}
}

func TestSaveDecodeLosslessRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := gray(8, 6, 77)
	for _, ext := range []string{".bmp", ".tif", ".png"} {
		path := filepath.Join(dir, "frame"+ext)
		if err := imaging.Save(path, src, 95); err != nil {
			t.Fatalf("Save %s: %v", ext, err)
		}
		img, err := imaging.Decode(path)
		if err != nil {
			t.Fatalf("Decode %s: %v", ext, err)
		}
		luma := imaging.Luminance(img)
		if luma.Width != 8 || luma.Height != 6 {
			t.Fatalf("%s: unexpected size %dx%d", ext, luma.Width, luma.Height)
		}
		if got := luma.At(3, 3); math.Abs(got-77.0/255) > 1e-9 {
			t.Fatalf("%s: luminance %v want %v", ext, got, 77.0/255)
		}
	}
}

func TestScaleAppliesFactor(t *testing.T) {
	out := imaging.Scale(gray(100, 40, 10), 0.5)
	if out.Bounds().Dx() != 50 || out.Bounds().Dy() != 20 {
		t.Fatalf("unexpected scaled size %v", out.Bounds())
	}
}

func TestLuminanceWeights(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	if got := imaging.Luminance(img).At(0, 0); math.Abs(got-0.2126) > 1e-9 {
		t.Fatalf("red luminance %v want 0.2126", got)
	}
}

func TestDecodeRejectsUnknownExtension(t *testing.T) {
	if _, err := imaging.Decode(filepath.Join(t.TempDir(), "x.webp")); err == nil {
		t.Fatal("expected error")
	}
}
