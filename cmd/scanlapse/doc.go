// Package main hosts the scanlapse CLI entrypoint and command graph.
//
// The Cobra command tree wraps the rename state machine, the experiment
// runner, and the result store. Configuration resolution and logger setup
// live here so the internal packages stay free of terminal concerns.
package main
