package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scanlapse/internal/cachegate"
	"scanlapse/internal/imaging"
	"scanlapse/internal/rename"
	"scanlapse/internal/services"
)

// Sources is the ordered frame list a run reads from.
type Sources struct {
	Dir   string
	Names []string
	// Cropped is set when frames come from padding-cropped copies because
	// the archive folder is gone.
	Cropped bool
}

// locateSources prefers the archive of canonical frames and falls back to
// the padding-cropped copies.
func locateSources(root, archive string, pairs []rename.Pair) (Sources, error) {
	archiveDir := filepath.Join(root, archive)
	if isDir(archiveDir) {
		names := make([]string, len(pairs))
		for i, p := range pairs {
			names[i] = p.Canonical
		}
		return Sources{Dir: archiveDir, Names: names}, nil
	}

	croppedDir := filepath.Join(root, cachegate.CroppedDir)
	if !isDir(croppedDir) {
		return Sources{}, services.Wrap(services.ErrConfiguration, "experiment", "sources",
			fmt.Sprintf("neither %s nor %s exists in %s", archive, cachegate.CroppedDir, root), nil)
	}
	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = croppedName(croppedDir, p.Canonical)
	}
	return Sources{Dir: croppedDir, Names: names, Cropped: true}, nil
}

// croppedName maps a canonical frame name onto its padding-cropped copy.
// Copies of lossless frames carry the BMP extension.
func croppedName(dir, canonical string) string {
	ext := filepath.Ext(canonical)
	stem := strings.TrimSuffix(canonical, ext)
	derived := stem + "_cropped" + imaging.OutputExt(ext)
	if _, err := os.Stat(filepath.Join(dir, derived)); err == nil {
		return derived
	}
	same := stem + "_cropped" + ext
	if _, err := os.Stat(filepath.Join(dir, same)); err == nil {
		return same
	}
	return derived
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
