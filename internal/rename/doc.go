// Package rename canonicalizes scanner-produced image filenames reversibly.
//
// A scanner writes frames such as img_002.tif, img_003.tif, ... whose numbers
// start at an arbitrary offset and are not zero padded. Canonicalize maps each
// frame to a sequential, zero-padded name (img_00.tif, img_01.tif, ...),
// records the original name and capture time in rename_log.json, and moves the
// frames into the archive folder (original_images by default). Restore undoes
// the transition, including the original modification times.
//
// Every batch is journaled before the first rename and each step is
// idempotent, so an interrupted run is completed by the next transition.
// Ambiguous directories (two equally common image extensions, or two filename
// prefixes) surface as *AmbiguityError values routed through a Chooser rather
// than interactive prompts.
package rename
