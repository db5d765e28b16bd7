// Package config loads, normalizes, and validates scanlapse configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SCANLAPSE_LOG_LEVEL. The Config type centralizes every knob the rename,
// extraction, and measurement stages need so a run can be reproduced from one
// file plus command-line overrides.
//
// Always obtain settings through this package so downstream code receives
// sanitized values, canonical normalization names, and clear validation errors.
package config
