// Package measure turns each sample folder of sub-images into a time series
// of mean luminance inside a region of interest.
//
// Folders are measured concurrently and every result carries its sample key;
// callers reassemble series by key, never by completion order.
package measure
