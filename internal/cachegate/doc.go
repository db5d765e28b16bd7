// Package cachegate decides whether extraction and measurement must rerun.
//
// Both decisions compare a fingerprint of every input that affects the
// stage's output against the one persisted by the previous run. Equality is
// structural; file timestamps never take part. A stale or missing
// fingerprint is a reason to redo work, never an error.
package cachegate
