// Package logging assembles the structured slog loggers used across
// scanlapse.
//
// It owns the console and JSON handlers, level parsing, and output fan-out to
// stdout plus an optional run log file. Context helpers stamp every line with
// the run identifier, pipeline stage, and sample id carried by the context, so
// stage code never has to repeat them by hand. A no-op logger is provided for
// tests and for wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same keys.
package logging
