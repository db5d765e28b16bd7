// Package geometry resolves parsed layout records into crop boxes and
// polygons in the coordinate frame of the images being processed.
package geometry

import (
	"fmt"
	"image"

	"scanlapse/internal/platespec"
	"scanlapse/internal/services"
)

// Box is an axis-aligned crop rectangle; X2 and Y2 are exclusive.
type Box struct {
	X1, Y1, X2, Y2 int
}

func (b Box) Width() int  { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Translate shifts the box by (dx, dy).
func (b Box) Translate(dx, dy int) Box {
	return Box{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Rect converts the box into an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Polygon is a vertex list plus its bounding box.
type Polygon struct {
	Vertices []platespec.Point
	Bounds   Box
}

// Rebased returns the vertices shifted so the minimum x and y are zero, the
// frame of a crop taken at Bounds.
func (p Polygon) Rebased() []platespec.Point {
	out := make([]platespec.Point, len(p.Vertices))
	for i, v := range p.Vertices {
		out[i] = platespec.Point{X: v.X - p.Bounds.X1, Y: v.Y - p.Bounds.Y1}
	}
	return out
}

func (p Polygon) translate(dx, dy int) Polygon {
	out := Polygon{Vertices: make([]platespec.Point, len(p.Vertices)), Bounds: p.Bounds.Translate(dx, dy)}
	for i, v := range p.Vertices {
		out.Vertices[i] = platespec.Point{X: v.X + dx, Y: v.Y + dy}
	}
	return out
}

// NewPolygon derives the bounding box of vertices.
func NewPolygon(vertices []platespec.Point) Polygon {
	p := Polygon{Vertices: append([]platespec.Point(nil), vertices...)}
	for i, v := range vertices {
		if i == 0 {
			p.Bounds = Box{X1: v.X, Y1: v.Y, X2: v.X, Y2: v.Y}
			continue
		}
		p.Bounds.X1 = min(p.Bounds.X1, v.X)
		p.Bounds.Y1 = min(p.Bounds.Y1, v.Y)
		p.Bounds.X2 = max(p.Bounds.X2, v.X)
		p.Bounds.Y2 = max(p.Bounds.Y2, v.Y)
	}
	return p
}

// Convert maps a non-polygon record onto a Box.
func Convert(rec platespec.Record) (Box, error) {
	v := rec.Values
	need := 4
	if rec.Kind == platespec.KindCornerSize || rec.Kind == platespec.KindCentreSize {
		need = 3
	}
	if len(v) != need {
		return Box{}, fmt.Errorf("%s %q: expected %d values, got %d", rec.Kind, rec.Name, need, len(v))
	}
	switch rec.Kind {
	case platespec.KindCornerSize:
		return Box{X1: v[0], Y1: v[1], X2: v[0] + v[2], Y2: v[1] + v[2]}, nil
	case platespec.KindCentreSize:
		half := v[2] / 2
		return Box{X1: v[0] - half, Y1: v[1] - half, X2: v[0] + half, Y2: v[1] + half}, nil
	case platespec.KindWidthHeight:
		return Box{X1: v[0], Y1: v[1], X2: v[0] + v[2], Y2: v[1] + v[3]}, nil
	case platespec.KindTwoPositions:
		return Box{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
	default:
		return Box{}, fmt.Errorf("%s %q: not a box representation", rec.Kind, rec.Name)
	}
}

// Options selects the coordinate frame of the resolved plan.
type Options struct {
	// SourceCropped is set when the images being cut are padding-cropped
	// copies rather than raw scanner frames.
	SourceCropped bool
	// GeometryFromCropped declares the layout was authored against the
	// padding-cropped frame.
	GeometryFromCropped bool
}

// Plan is the resolved geometry of one layout. Every region has a box;
// polygon regions also have an entry in Polygons.
type Plan struct {
	Boxes    map[string]Box
	Order    []string
	Polygons map[string]Polygon
	Padding  *Box
}

// Shifted reports whether boxes were translated into the cropped frame.
func (o Options) Shifted() bool {
	return o.SourceCropped && !o.GeometryFromCropped
}

// Resolve converts layout into a Plan. Reading cropped sources with geometry
// authored against raw frames translates every region by the padding origin;
// that mode requires a removePadding declaration.
func Resolve(layout *platespec.Layout, opts Options) (*Plan, error) {
	plan := &Plan{
		Boxes:    make(map[string]Box, len(layout.Records)),
		Polygons: map[string]Polygon{},
	}
	if layout.Padding != nil {
		pad, err := Convert(*layout.Padding)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "geometry", "padding", layout.Source, err)
		}
		plan.Padding = &pad
	}

	dx, dy := 0, 0
	if opts.Shifted() {
		if plan.Padding == nil {
			return nil, services.Wrap(services.ErrConfiguration, "geometry", "resolve",
				layout.Source+": reading cropped images with raw-frame geometry needs a removePadding line", nil)
		}
		dx, dy = -plan.Padding.X1, -plan.Padding.Y1
	}

	for _, rec := range layout.Records {
		var box Box
		if rec.Kind == platespec.KindPolygon {
			poly := NewPolygon(rec.Vertices).translate(dx, dy)
			plan.Polygons[rec.Name] = poly
			box = poly.Bounds
		} else {
			b, err := Convert(rec)
			if err != nil {
				return nil, services.Wrap(services.ErrConfiguration, "geometry", "resolve", fmt.Sprintf("%s:%d", layout.Source, rec.Line), err)
			}
			box = b.Translate(dx, dy)
		}
		if box.Width() <= 0 || box.Height() <= 0 {
			return nil, services.Wrap(services.ErrConfiguration, "geometry", "resolve",
				fmt.Sprintf("%s:%d: region %q has an empty box", layout.Source, rec.Line, rec.Name), nil)
		}
		plan.Boxes[rec.Name] = box
		plan.Order = append(plan.Order, rec.Name)
	}
	return plan, nil
}
