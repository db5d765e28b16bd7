package preflight

import (
	"fmt"
	"strings"

	"scanlapse/internal/services"
)

// MinFreeBytes is the free space below which a run is refused.
const MinFreeBytes = 256 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll checks the experiment directory and every spec file of a run.
func RunAll(root string, specFiles []string) []Result {
	results := []Result{
		CheckDirectoryAccess("Experiment directory", root),
		CheckFreeSpace("Free space", root, MinFreeBytes),
	}
	seen := map[string]bool{}
	for _, path := range specFiles {
		if seen[path] {
			continue
		}
		seen[path] = true
		results = append(results, CheckFileReadable("Spec file", path))
	}
	return results
}

// Failed folds failing results into one configuration error, or nil.
func Failed(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "", strings.Join(failed, "; "), nil)
}
