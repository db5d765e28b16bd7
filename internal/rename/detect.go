package rename

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"scanlapse/internal/services"
)

// AmbiguityKind names the decision a Chooser is asked to make.
type AmbiguityKind string

const (
	AmbiguousExtension AmbiguityKind = "extension"
	AmbiguousPrefix    AmbiguityKind = "prefix"
)

// AmbiguityError reports that a directory cannot be classified without a
// decision. It matches services.ErrAmbiguous under errors.Is.
type AmbiguityError struct {
	Kind       AmbiguityKind
	Candidates []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("ambiguous %s: candidates %s", e.Kind, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguityError) Unwrap() error { return services.ErrAmbiguous }

// Chooser resolves an ambiguity by returning one of the candidates. Returning
// an error aborts detection.
type Chooser interface {
	Choose(kind AmbiguityKind, candidates []string) (string, error)
}

// ChooserFunc adapts a function to the Chooser interface.
type ChooserFunc func(kind AmbiguityKind, candidates []string) (string, error)

func (f ChooserFunc) Choose(kind AmbiguityKind, candidates []string) (string, error) {
	return f(kind, candidates)
}

// Overrides is a Chooser backed by operator-supplied answers. An empty or
// non-candidate answer leaves the ambiguity unresolved.
type Overrides struct {
	Extension string
	Prefix    string
}

func (o Overrides) Choose(kind AmbiguityKind, candidates []string) (string, error) {
	want := o.Prefix
	if kind == AmbiguousExtension {
		want = normalizeExtension(o.Extension)
	}
	if want != "" && slices.Contains(candidates, want) {
		return want, nil
	}
	return "", &AmbiguityError{Kind: kind, Candidates: candidates}
}

var recognizedExtensions = []string{".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".png"}

// IsImageExtension reports whether ext is one of the recognized image formats.
func IsImageExtension(ext string) bool {
	return slices.Contains(recognizedExtensions, strings.ToLower(ext))
}

// Detection describes the dominant file family in a directory.
type Detection struct {
	Extension string
	Prefix    string
	Count     int
	Digits    int
}

// CanonicalName renders the canonical file name for index.
func (d Detection) CanonicalName(index int) string {
	return fmt.Sprintf("%s%0*d%s", d.Prefix, d.Digits, index, d.Extension)
}

var trailingNumber = regexp.MustCompile(`^(.*?)([0-9]+)$`)

// SplitNumber splits a file stem into its prefix and trailing numeric run.
func SplitNumber(stem string) (prefix string, number int, ok bool) {
	m := trailingNumber.FindStringSubmatch(stem)
	if m == nil {
		return stem, 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return stem, 0, false
	}
	return m[1], n, true
}

// Detect classifies names (plain file names, no directories). Ambiguities are
// passed to chooser; a nil chooser reports them as *AmbiguityError.
func Detect(names []string, chooser Chooser) (Detection, error) {
	if chooser == nil {
		chooser = Overrides{}
	}
	ext, err := dominantExtension(names, chooser)
	if err != nil {
		return Detection{}, err
	}

	prefixes := map[string]struct{}{}
	count := 0
	for _, name := range names {
		if filepath.Ext(name) != ext {
			continue
		}
		count++
		if prefix, _, ok := SplitNumber(strings.TrimSuffix(name, ext)); ok {
			prefixes[prefix] = struct{}{}
		}
	}
	if len(prefixes) == 0 {
		return Detection{}, services.Wrap(services.ErrConfiguration, "rename", "detect prefix",
			fmt.Sprintf("no numbered %s files found", ext), nil)
	}
	candidates := sortedKeys(prefixes)
	prefix := candidates[0]
	if len(candidates) > 1 {
		prefix, err = chooser.Choose(AmbiguousPrefix, candidates)
		if err != nil {
			return Detection{}, err
		}
	}

	digits, err := digitsFor(count)
	if err != nil {
		return Detection{}, err
	}
	return Detection{Extension: ext, Prefix: prefix, Count: count, Digits: digits}, nil
}

func dominantExtension(names []string, chooser Chooser) (string, error) {
	counts := map[string]int{}
	for _, name := range names {
		counts[filepath.Ext(name)]++
	}
	best := 0
	for _, n := range counts {
		best = max(best, n)
	}
	var leaders []string
	for ext, n := range counts {
		if n == best && best > 0 {
			leaders = append(leaders, ext)
		}
	}
	sort.Strings(leaders)
	if len(leaders) == 1 {
		return leaders[0], nil
	}

	images := slices.DeleteFunc(leaders, func(ext string) bool { return !IsImageExtension(ext) })
	switch len(images) {
	case 0:
		return "", services.Wrap(services.ErrConfiguration, "rename", "detect extension", "no image files recognized", nil)
	case 1:
		return images[0], nil
	default:
		choice, err := chooser.Choose(AmbiguousExtension, images)
		if err != nil {
			return "", err
		}
		return choice, nil
	}
}

func digitsFor(count int) (int, error) {
	switch {
	case count < 100:
		return 2, nil
	case count < 10_000:
		return 3, nil
	case count < 100_000:
		return 4, nil
	default:
		return 0, services.Wrap(services.ErrConfiguration, "rename", "detect digits",
			fmt.Sprintf("%d files is beyond the supported series length", count), nil)
	}
}

func normalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsAmbiguity unwraps err into an *AmbiguityError when it carries one.
func IsAmbiguity(err error) (*AmbiguityError, bool) {
	var amb *AmbiguityError
	if errors.As(err, &amb) {
		return amb, true
	}
	return nil, false
}
