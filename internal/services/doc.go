// Package services defines the shared plumbing consumed by every pipeline
// stage.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers, stage names, and sample ids
//     for logging.
//   - Structured error markers plus the Wrap helper so callers can classify a
//     failure (configuration, ambiguous input, validation) with errors.Is.
//
// Use these helpers when wiring new stage logic so error reporting and log
// fields stay uniform across rename, extraction, and measurement.
package services
