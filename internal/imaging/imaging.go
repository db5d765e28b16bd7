// Package imaging holds the codec and pixel helpers shared by extraction and
// measurement: format selection by extension, black-filled crops, scaling,
// and Rec. 709 luminance.
package imaging

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Lossless reports whether ext names a format that must not be re-encoded
// lossily.
func Lossless(ext string) bool {
	switch strings.ToLower(ext) {
	case ".bmp", ".tif", ".tiff", ".png":
		return true
	}
	return false
}

// OutputExt returns the extension derived files of a source with ext use:
// BMP for lossless sources, JPEG otherwise.
func OutputExt(ext string) string {
	if Lossless(ext) {
		return ".bmp"
	}
	return ".jpg"
}

// Supported reports whether ext can be decoded.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// Decode reads the image at path, choosing the codec from its extension.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var img image.Image
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(r)
	case ".png":
		img, err = png.Decode(r)
	case ".gif":
		img, err = gif.Decode(r)
	case ".bmp":
		img, err = bmp.Decode(r)
	case ".tif", ".tiff":
		img, err = tiff.Decode(r)
	default:
		return nil, fmt.Errorf("decode %s: unsupported extension %q", filepath.Base(path), ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Encode writes img in the format named by ext. quality applies to JPEG only.
func Encode(w io.Writer, img image.Image, ext string, quality int) error {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case ".png":
		return png.Encode(w, img)
	case ".gif":
		return gif.Encode(w, img, nil)
	case ".bmp":
		return bmp.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("encode: unsupported extension %q", ext)
	}
}

// Save encodes img to path, creating parent folders.
func Save(path string, img image.Image, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, img, filepath.Ext(path), quality); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Crop copies r out of src into a new image anchored at the origin. Parts of
// r outside src are black.
func Crop(src image.Image, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	// Offset so src bounds that do not start at the origin still line up.
	visible := r.Intersect(src.Bounds())
	if visible.Empty() {
		return dst
	}
	draw.Draw(dst, visible.Sub(r.Min), src, visible.Min, draw.Src)
	return dst
}

// Scale resizes src by factor using bilinear interpolation.
func Scale(src image.Image, factor float64) *image.RGBA {
	b := src.Bounds()
	w := max(1, int(float64(b.Dx())*factor))
	h := max(1, int(float64(b.Dy())*factor))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Luma is a single-channel image with values in [0, 1].
type Luma struct {
	Width, Height int
	Pix           []float64
}

// At returns the value at (x, y) relative to the top-left corner.
func (l *Luma) At(x, y int) float64 {
	return l.Pix[y*l.Width+x]
}

// Luminance converts img with Rec. 709 weights.
func Luminance(img image.Image) *Luma {
	b := img.Bounds()
	out := &Luma{Width: b.Dx(), Height: b.Dy(), Pix: make([]float64, b.Dx()*b.Dy())}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Pix[i] = luminance(img.At(x, y))
			i++
		}
	}
	return out
}

func luminance(c color.Color) float64 {
	if g, ok := c.(color.Gray); ok {
		return float64(g.Y) / 255
	}
	r, g, b, _ := c.RGBA()
	if r == g && g == b {
		return float64(r) / 0xffff
	}
	return (0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)) / 0xffff
}
