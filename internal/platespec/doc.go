// Package platespec parses the two tab-separated plate description languages:
// the sample table (sampleInfo ... END_INFO) naming each sample, its
// measurement shape, and free-form grouping columns; and the layout table
// (CornerSize, WidthHeight, CentreSize, TwoPositions, Polygon, removePadding
// blocks ... END_POSITION) locating every sample on the scanned frame.
//
// Both sections may share one file, layout first. Parsing is pure and happens
// before any filesystem mutation; every error wraps services.ErrConfiguration
// and names the file and line.
package platespec
