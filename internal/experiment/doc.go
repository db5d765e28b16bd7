// Package experiment runs the full pipeline over one experiment directory:
// canonical naming, spec parsing, geometry resolution, gated extraction,
// gated measurement, aggregation, and persistence.
//
// A run holds an exclusive lock on the directory for its whole duration.
// Every configuration problem (spec syntax, segment references, missing
// regions) is reported before anything on disk changes.
package experiment
