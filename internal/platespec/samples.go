package platespec

import (
	"fmt"
	"io"
	"os"
	"strings"

	"scanlapse/internal/services"
)

const (
	sampleHeaderToken = "sampleInfo"
	sampleEndToken    = "END_INFO"
	measureColumn     = "measure"
	colourColumn      = "colour"
)

// Measure is the region-of-interest shape used for a sample.
type Measure string

const (
	MeasureDisk    Measure = "disk"
	MeasureSquare  Measure = "square"
	MeasurePolygon Measure = "polygon"
)

// ParseMeasure maps the accepted spellings onto a Measure.
func ParseMeasure(value string) (Measure, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "disk", "circle", "centredisk", "centerdisk":
		return MeasureDisk, nil
	case "square":
		return MeasureSquare, nil
	case "polygon":
		return MeasurePolygon, nil
	default:
		return "", fmt.Errorf("unknown measure %q (want disk, square, or polygon)", value)
	}
}

// Field is one metadata column value of a sample.
type Field struct {
	Name  string
	Value string
}

// Sample is one row of the sample table.
type Sample struct {
	ID      string
	Measure Measure
	Fields  []Field
}

// Get returns the value of column name; unset columns report false.
func (s Sample) Get(name string) (string, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Colour returns the display colour column, if set.
func (s Sample) Colour() string {
	v, _ := s.Get(colourColumn)
	return v
}

// Group returns the value of a grouping column. Samples without a value form
// their own group named after the sample.
func (s Sample) Group(level string) string {
	if v, ok := s.Get(level); ok {
		return v
	}
	return s.ID
}

// SampleTable is the parsed sample section in file order.
type SampleTable struct {
	Source  string
	Header  []string
	Samples []Sample
}

// Levels returns the grouping columns: every header column except measure
// and colour, in header order.
func (t *SampleTable) Levels() []string {
	var out []string
	for _, h := range t.Header {
		if h == measureColumn || h == colourColumn {
			continue
		}
		out = append(out, h)
	}
	return out
}

// IDs returns the sample ids in file order.
func (t *SampleTable) IDs() []string {
	out := make([]string, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s.ID
	}
	return out
}

// Lookup finds a sample by id.
func (t *SampleTable) Lookup(id string) (Sample, bool) {
	for _, s := range t.Samples {
		if s.ID == id {
			return s, true
		}
	}
	return Sample{}, false
}

// ParseSamples reads the sample section of r. Lines before the sampleInfo
// header are ignored, so a combined layout+sample file parses unchanged.
func ParseSamples(r io.Reader, source string) (*SampleTable, error) {
	lines, err := scanLines(r, source)
	if err != nil {
		return nil, err
	}
	table := &SampleTable{Source: source}
	started := false
	seen := map[string]int{}
	measureIdx := -1
	for _, ln := range lines {
		if !started {
			if ln.tokens[0] != sampleHeaderToken {
				continue
			}
			started = true
			table.Header = append([]string(nil), ln.tokens[1:]...)
			for i, h := range table.Header {
				if h == measureColumn {
					measureIdx = i
				}
			}
			if measureIdx < 0 {
				return nil, lineError(source, ln.number, "sample header has no %q column", measureColumn)
			}
			continue
		}
		if strings.HasPrefix(ln.tokens[0], sampleEndToken) {
			break
		}

		id := ln.tokens[0]
		if prev, dup := seen[id]; dup {
			return nil, lineError(source, ln.number, "sample %q already defined on line %d", id, prev)
		}
		seen[id] = ln.number
		values := ln.tokens[1:]
		if len(values) > len(table.Header) {
			return nil, lineError(source, ln.number, "sample %q has %d values for %d columns", id, len(values), len(table.Header))
		}
		if measureIdx >= len(values) {
			return nil, lineError(source, ln.number, "sample %q has no measure value", id)
		}
		measure, err := ParseMeasure(values[measureIdx])
		if err != nil {
			return nil, lineError(source, ln.number, "sample %q: %v", id, err)
		}
		sample := Sample{ID: id, Measure: measure, Fields: make([]Field, 0, len(values))}
		for i, v := range values {
			sample.Fields = append(sample.Fields, Field{Name: table.Header[i], Value: v})
		}
		table.Samples = append(table.Samples, sample)
	}
	if !started {
		return nil, services.Wrap(services.ErrConfiguration, "platespec", source, "no "+sampleHeaderToken+" header found", nil)
	}
	if len(table.Samples) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "platespec", source, "sample table is empty", nil)
	}
	return table, nil
}

// LoadSamples parses the sample section of the file at path.
func LoadSamples(path string) (*SampleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "platespec", "open", path, err)
	}
	defer f.Close()
	return ParseSamples(f, path)
}
