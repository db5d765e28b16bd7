// Package preflight provides readiness checks for the filesystem paths a
// scanlapse run depends on.
//
// These checks run in two contexts:
//   - The run command calls RunAll before touching the experiment directory.
//     If any check fails, nothing is renamed or deleted.
//   - The CLI "scanlapse status" command uses CheckDirectoryAccess and
//     CheckFreeSpace to display the health of an experiment directory.
package preflight
