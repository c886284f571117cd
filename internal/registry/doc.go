// Package registry provides the central "glue" for the module system.
//
// The Registry maps module names to the function descriptors they export and
// to the holder of each module's live instance. It is populated at startup,
// optionally sealed, and read concurrently by the dispatcher afterwards.
//
// Modules may hook into their own lifecycle by implementing Creator and
// Destroyer. Tearing a module down keeps its descriptors visible so that a
// call to a module that no longer exists can be reported as unavailable
// rather than not found.
package registry
