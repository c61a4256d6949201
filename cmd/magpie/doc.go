// Package main hosts the magpie CLI entrypoint and command graph.
//
// The Cobra-based command tree covers foreground sorting runs, environment
// checks, run history inspection, category map display, and configuration
// scaffolding. It centralizes configuration resolution and logger setup so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
