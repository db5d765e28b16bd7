// Package resultstore persists measured tables in SQLite inside the
// experiment directory and exports them as TSV for external plotting.
//
// Every save is one transaction holding the joined table, the group summary,
// and the measurement fingerprint digest that produced them, so a reader
// never sees a table paired with the wrong fingerprint. Schema changes bump
// schemaVersion; older databases are rejected and must be deleted, which
// only forces a re-measure.
package resultstore
