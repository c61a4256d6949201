// Package organize implements the staging sort pass.
//
// A single walk over the staging directory relocates subdirectories into the
// archive's Folders tree and moves files into their classified category
// folder. Exclusions and the recency gate are applied before classification,
// so excluded or still-settling files never reach the oracle. Collisions at
// the destination are resolved with a numeric suffix rather than overwrites.
package organize
