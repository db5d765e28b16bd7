package cachegate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"scanlapse/internal/fileutil"
)

const (
	// FingerprintFileName holds the extraction fingerprint of the last run.
	FingerprintFileName = "extract_fingerprint.json"
	// SubImagesDir is the root of the per-sample output folders.
	SubImagesDir = "subImages"
	// CroppedDir holds padding-cropped copies of raw frames.
	CroppedDir = "cropped_ori"
	// ResizedDir holds downscaled previews.
	ResizedDir = "resized"
	// ResultPrefix marks result folders that survive a reset.
	ResultPrefix = "result_"

	// minSampleEntries is the entry count a sample folder must exceed to count
	// as populated.
	minSampleEntries = 2
)

// Decision is the outcome of a gate.
type Decision struct {
	Run    bool
	Reason string
}

func run(reason string) Decision  { return Decision{Run: true, Reason: reason} }
func skip(reason string) Decision { return Decision{Reason: reason} }

// LoadFingerprint reads the persisted extraction fingerprint. ok is false when
// none exists or it cannot be decoded.
func LoadFingerprint(root string) (fp Fingerprint, ok bool, err error) {
	if err := fileutil.ReadJSON(filepath.Join(root, FingerprintFileName), &fp); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Fingerprint{}, false, nil
		}
		var syntax *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntax) || errors.As(err, &typeErr) {
			// Unreadable fingerprints only mean the cache is stale.
			return Fingerprint{}, false, nil
		}
		return Fingerprint{}, false, err
	}
	return fp, true, nil
}

// SaveFingerprint persists fp atomically.
func SaveFingerprint(root string, fp Fingerprint) error {
	if err := fileutil.WriteJSONAtomic(filepath.Join(root, FingerprintFileName), fp); err != nil {
		return fmt.Errorf("save extraction fingerprint: %w", err)
	}
	return nil
}

// DecideExtraction reports whether extraction must run. It is skipped only
// when the persisted fingerprint equals fp, the output root exists, and every
// sample folder is populated.
func DecideExtraction(root string, fp Fingerprint, samples []string, sourceCount int, force bool) (Decision, error) {
	if force {
		return run("forced"), nil
	}
	previous, ok, err := LoadFingerprint(root)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return run("no previous fingerprint"), nil
	}
	if !previous.Equal(fp) {
		return run("inputs changed"), nil
	}
	if info, err := os.Stat(filepath.Join(root, SubImagesDir)); err != nil || !info.IsDir() {
		return run("output folder missing"), nil
	}
	need := min(minSampleEntries+1, sourceCount)
	for _, sample := range samples {
		entries, err := os.ReadDir(filepath.Join(root, SubImagesDir, sample))
		if err != nil || len(entries) < need {
			return run(fmt.Sprintf("sample %s incomplete", sample)), nil
		}
	}
	return skip("up to date"), nil
}

// ResetOptions names the folders that survive a reset.
type ResetOptions struct {
	// Archive is the folder holding canonical source frames.
	Archive string
	// SourceCropped keeps cropped_ori because it is the source.
	SourceCropped bool
	// Preserve lists further top-level folders to keep, such as the log dir.
	Preserve []string
}

// Reset removes every derived top-level folder of root and recreates folders
// (relative paths) empty.
func Reset(root string, opts ResetOptions, folders []string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read experiment dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || keep(entry.Name(), opts) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}
	for _, folder := range folders {
		if err := os.MkdirAll(filepath.Join(root, folder), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", folder, err)
		}
	}
	return nil
}

func keep(name string, opts ResetOptions) bool {
	switch {
	case strings.HasPrefix(name, ResultPrefix):
		return true
	case name == opts.Archive:
		return true
	case name == CroppedDir && opts.SourceCropped:
		return true
	}
	return slices.Contains(opts.Preserve, name)
}

// DecideMeasurement reports whether measurement must run given the digest
// and row count of the stored table.
func DecideMeasurement(fp MeasureFingerprint, storedDigest string, storedRows int, force bool) Decision {
	switch {
	case force:
		return run("forced")
	case storedDigest == "":
		return run("no stored table")
	case storedRows == 0:
		return run("stored table empty")
	case storedDigest != fp.Digest():
		return run("inputs changed")
	}
	return skip("up to date")
}
