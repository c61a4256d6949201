// Package notifications delivers run outcomes via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. The pipeline pushes exactly one notification per run, completed
// or failed.
//
// Extend this package if you need alternative transports; pipeline code
// depends only on the simple Service interface.
package notifications
