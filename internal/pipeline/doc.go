// Package pipeline sequences the organizing stages of a single run. The
// runner acquires a lock file, health-checks the enabled stages, then
// executes organize, rename, and pdfsort in order on one background
// goroutine, journaling outcomes through the run log store and pushing one
// notification when the run settles.
package pipeline
