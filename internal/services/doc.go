// Package services defines shared utilities consumed by the pipeline stage
// handlers and the oracle client.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and the staging entry
//     under processing for logging and tracing.
//   - Structured error markers plus the Wrap helper, keeping failure
//     classification (retryable vs final) uniform across stages.
//
// Use these helpers when wiring new stage logic so operational behaviour
// stays consistent across the pipeline.
package services
