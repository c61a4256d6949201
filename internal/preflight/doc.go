// Package preflight provides readiness checks for the filesystem paths and
// the classification oracle that a run depends on.
//
// The CLI "magpie status" command renders RunAll results as its environment
// table. Every check is independent: a failed result carries a one-line
// detail and never aborts the remaining checks.
package preflight
