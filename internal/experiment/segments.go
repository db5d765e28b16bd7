package experiment

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"scanlapse/internal/rename"
	"scanlapse/internal/services"
)

// SegmentSpec is an operator-supplied segment boundary: the frame where a
// geometry file starts to apply.
type SegmentSpec struct {
	// Start is an original file name, a canonical file name, or a 0-based
	// frame index.
	Start string
	File  string
}

// ParseSegmentFlag parses START=FILE.
func ParseSegmentFlag(value string) (SegmentSpec, error) {
	start, file, ok := strings.Cut(value, "=")
	start, file = strings.TrimSpace(start), strings.TrimSpace(file)
	if !ok || start == "" || file == "" {
		return SegmentSpec{}, services.Wrap(services.ErrConfiguration, "segments", "parse",
			fmt.Sprintf("segment %q must look like START=FILE", value), nil)
	}
	return SegmentSpec{Start: start, File: file}, nil
}

// Segment is a resolved segment boundary.
type Segment struct {
	Start int
	File  string
}

// ResolveSegments turns the primary spec file plus extra boundaries into an
// ordered segment list starting at frame 0. pairs is the rename mapping in
// canonical order.
func ResolveSegments(primary string, extra []SegmentSpec, pairs []rename.Pair) ([]Segment, error) {
	byOriginal := make(map[string]int, len(pairs))
	byCanonical := make(map[string]int, len(pairs))
	for i, p := range pairs {
		byOriginal[p.Original] = i
		byCanonical[p.Canonical] = i
	}

	segments := []Segment{{Start: 0, File: primary}}
	seen := map[int]string{0: primary}
	for _, spec := range extra {
		idx, ok := byOriginal[spec.Start]
		if !ok {
			idx, ok = byCanonical[spec.Start]
		}
		if !ok {
			if n, err := strconv.Atoi(spec.Start); err == nil && n >= 0 && n < len(pairs) {
				idx, ok = n, true
			}
		}
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "segments", "resolve",
				fmt.Sprintf("segment start %q matches no original name, canonical name, or frame index (%d frames)", spec.Start, len(pairs)), nil)
		}
		if idx == 0 {
			return nil, services.Wrap(services.ErrConfiguration, "segments", "resolve",
				fmt.Sprintf("segment start %q is the first frame, which the primary spec file already covers", spec.Start), nil)
		}
		if prev, dup := seen[idx]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "segments", "resolve",
				fmt.Sprintf("segments %s and %s both start at frame %d", prev, spec.File, idx), nil)
		}
		seen[idx] = spec.File
		segments = append(segments, Segment{Start: idx, File: spec.File})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	return segments, nil
}

// Lengths returns the frame count of each segment given the total frame
// count.
func Lengths(segments []Segment, total int) []int {
	out := make([]int, len(segments))
	for i, seg := range segments {
		end := total
		if i+1 < len(segments) {
			end = segments[i+1].Start
		}
		out[i] = end - seg.Start
	}
	return out
}
