// Package logs reads the per-run JSON logs written under an experiment's log
// directory.
//
// It locates the newest run log, keeps only the last N matching records with
// bounded memory, and filters by level, component, or sample so operators can
// see why a frame or sample folder failed without opening the file.
package logs
