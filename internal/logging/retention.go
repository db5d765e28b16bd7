package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const runLogPattern = "scanlapse-*.log"

// PruneRunLogs keeps the newest keep run logs in dir and removes the rest.
// A keep value of 0 disables pruning. Failures are logged, never returned.
func PruneRunLogs(logger *slog.Logger, dir string, keep int) {
	dir = strings.TrimSpace(dir)
	if keep <= 0 || dir == "" {
		return
	}
	matches, err := filepath.Glob(filepath.Join(dir, runLogPattern))
	if err != nil || len(matches) <= keep {
		return
	}
	// Run log names embed a sortable timestamp.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	for _, path := range matches[keep:] {
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "run log prune failed; file remains", "log_prune_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check permissions on the log directory"),
				String(FieldImpact, "old run log remains on disk"),
			)
			continue
		}
		if logger != nil {
			logger.Debug("run log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
}
