package platespec

import (
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"scanlapse/internal/services"
)

const layoutEndToken = "END_POSITION"

// Kind is a layout block keyword.
type Kind string

const (
	KindCornerSize    Kind = "CornerSize"
	KindWidthHeight   Kind = "WidthHeight"
	KindCentreSize    Kind = "CentreSize"
	KindTwoPositions  Kind = "TwoPositions"
	KindPolygon       Kind = "Polygon"
	KindRemovePadding Kind = "removePadding"
)

var arity = map[Kind]int{
	KindCornerSize:   3,
	KindWidthHeight:  4,
	KindCentreSize:   3,
	KindTwoPositions: 4,
}

func parseKind(token string) (Kind, bool) {
	switch k := Kind(token); k {
	case KindCornerSize, KindWidthHeight, KindCentreSize, KindTwoPositions, KindPolygon, KindRemovePadding:
		return k, true
	}
	return "", false
}

// Point is a polygon vertex in frame pixels.
type Point struct {
	X, Y int
}

// Record is one named region of the layout in the representation of the
// block it was declared under.
type Record struct {
	Kind     Kind
	Name     string
	Values   []int
	Vertices []Point
	Line     int
}

// Layout is the parsed geometry section in file order. Padding, when set,
// has the kind of the block it followed (WidthHeight or TwoPositions).
type Layout struct {
	Source  string
	Records []Record
	Padding *Record
}

// Names returns region names in declaration order.
func (l *Layout) Names() []string {
	out := make([]string, len(l.Records))
	for i, r := range l.Records {
		out[i] = r.Name
	}
	return out
}

var polygonCall = regexp.MustCompile(`^makePolygon\(([^)]*)\);?$`)

// ParseLayout reads the geometry section of r up to END_POSITION or EOF.
func ParseLayout(r io.Reader, source string) (*Layout, error) {
	lines, err := scanLines(r, source)
	if err != nil {
		return nil, err
	}
	layout := &Layout{Source: source}
	seen := map[string]int{}
	// previous is the block before the current keyword; it is the only
	// input to the removePadding legality check.
	var current, previous Kind
	for _, ln := range lines {
		head := ln.tokens[0]
		if strings.HasPrefix(head, layoutEndToken) {
			break
		}
		if head == sampleHeaderToken {
			// A sample section without END_POSITION ends the layout.
			break
		}
		if kind, ok := parseKind(head); ok {
			previous, current = current, kind
			if kind == KindRemovePadding {
				padding, err := parsePadding(ln, previous, source)
				if err != nil {
					return nil, err
				}
				if layout.Padding != nil {
					return nil, lineError(source, ln.number, "removePadding already declared on line %d", layout.Padding.Line)
				}
				layout.Padding = padding
			}
			continue
		}

		switch current {
		case "":
			return nil, lineError(source, ln.number, "row %q appears before any block keyword", head)
		case KindRemovePadding:
			return nil, lineError(source, ln.number, "removePadding takes its values on the keyword line; start a new block before %q", head)
		}
		if prev, dup := seen[head]; dup {
			return nil, lineError(source, ln.number, "region %q already defined on line %d", head, prev)
		}
		seen[head] = ln.number

		rec := Record{Kind: current, Name: head, Line: ln.number}
		if current == KindPolygon {
			rec.Vertices, err = parsePolygon(ln, source)
		} else {
			rec.Values, err = parseInts(ln.tokens[1:], arity[current], ln, source)
		}
		if err != nil {
			return nil, err
		}
		layout.Records = append(layout.Records, rec)
	}
	if len(layout.Records) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "platespec", source, "layout defines no regions", nil)
	}
	return layout, nil
}

func parsePadding(ln line, previous Kind, source string) (*Record, error) {
	switch previous {
	case KindWidthHeight, KindTwoPositions:
	case "":
		return nil, lineError(source, ln.number, "removePadding must follow a WidthHeight or TwoPositions block")
	default:
		return nil, lineError(source, ln.number, "removePadding must follow a WidthHeight or TwoPositions block, not %s", previous)
	}
	values, err := parseInts(ln.tokens[1:], 4, ln, source)
	if err != nil {
		return nil, err
	}
	return &Record{Kind: previous, Name: string(KindRemovePadding), Values: values, Line: ln.number}, nil
}

func parseInts(tokens []string, want int, ln line, source string) ([]int, error) {
	if len(tokens) != want {
		return nil, lineError(source, ln.number, "expected %d integers, found %d", want, len(tokens))
	}
	out := make([]int, want)
	for i, tok := range tokens {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, lineError(source, ln.number, "value %q is not an integer", tok)
		}
		out[i] = v
	}
	return out, nil
}

func parsePolygon(ln line, source string) ([]Point, error) {
	if len(ln.tokens) != 2 {
		return nil, lineError(source, ln.number, "polygon row needs one makePolygon(...) token")
	}
	m := polygonCall.FindStringSubmatch(strings.ReplaceAll(ln.tokens[1], " ", ""))
	if m == nil {
		return nil, lineError(source, ln.number, "polygon token %q is not makePolygon(x1,y1,...)", ln.tokens[1])
	}
	coords, err := parseInts(strings.Split(m[1], ","), strings.Count(m[1], ",")+1, ln, source)
	if err != nil {
		return nil, err
	}
	if len(coords)%2 != 0 || len(coords) < 6 {
		return nil, lineError(source, ln.number, "polygon needs at least 3 x,y pairs, found %d values", len(coords))
	}
	vertices := make([]Point, 0, len(coords)/2)
	for i := 0; i < len(coords); i += 2 {
		vertices = append(vertices, Point{X: coords[i], Y: coords[i+1]})
	}
	return vertices, nil
}

// LoadLayout parses the geometry section of the file at path.
func LoadLayout(path string) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "platespec", "open", path, err)
	}
	defer f.Close()
	return ParseLayout(f, path)
}
