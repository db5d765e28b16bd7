package measure

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"scanlapse/internal/imaging"
)

// implausibleGap is the first-frame capture gap below which capture times
// are treated as rewritten by a copy.
const implausibleGap = 300 * time.Second

// Basis names where point times come from.
type Basis string

const (
	BasisCapture    Basis = "capture"
	BasisFileNumber Basis = "file_number"
)

// Point is one measured frame. Time is in hours.
type Point struct {
	Time  float64
	Value float64
}

// Series is the unsorted measurement of one sample folder.
type Series struct {
	Sample string
	Basis  Basis
	Points []Point
}

var digitRun = regexp.MustCompile(`[0-9]+`)

// FileNumber extracts the frame number of a sub-image name: the last number
// in the stem once the sample suffix and the padding-copy marker are gone.
func FileNumber(name, sample string) (int, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if trimmed, ok := strings.CutSuffix(stem, "_"+sample); ok {
		stem = trimmed
	} else if i := strings.LastIndex(stem, "_"); i >= 0 {
		stem = stem[:i]
	}
	stem, _, _ = strings.Cut(stem, "_cropped")
	runs := digitRun.FindAllString(stem, -1)
	if len(runs) == 0 {
		return 0, fmt.Errorf("no frame number in %q", name)
	}
	return strconv.Atoi(runs[len(runs)-1])
}

// DominantExtension returns the most common decodable extension among names.
// Ties resolve to the lexically smallest extension.
func DominantExtension(names []string) string {
	counts := map[string]int{}
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if imaging.Supported(ext) {
			counts[ext]++
		}
	}
	best, bestCount := "", 0
	for ext, n := range counts {
		if n > bestCount || (n == bestCount && ext < best) {
			best, bestCount = ext, n
		}
	}
	return best
}

// listFrames returns the folder's frames of its dominant extension, sorted by
// name.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	ext := DominantExtension(names)
	frames := names[:0]
	for _, name := range names {
		if strings.EqualFold(filepath.Ext(name), ext) {
			frames = append(frames, name)
		}
	}
	sort.Strings(frames)
	return frames, nil
}

// chooseBasis picks the time basis of a folder from the first two frames.
func chooseBasis(dir string, frames []string, force bool) (Basis, error) {
	if force || len(frames) < 2 {
		return BasisFileNumber, nil
	}
	first, err := os.Stat(filepath.Join(dir, frames[0]))
	if err != nil {
		return "", err
	}
	second, err := os.Stat(filepath.Join(dir, frames[1]))
	if err != nil {
		return "", err
	}
	if second.ModTime().Sub(first.ModTime()) < implausibleGap {
		return BasisFileNumber, nil
	}
	return BasisCapture, nil
}

func statModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
