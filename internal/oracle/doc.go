// Package oracle provides the OpenRouter chat client behind every
// LLM-assisted decision the organizer makes.
//
// This package is used by:
//   - Sorting stage: classify unknown extensions, classify code by content
//   - Rename stage: title image batches, re-title single images on repair
//   - PDF stage: pick Documents subfolders
//
// # Request Shape
//
// Every operation requests JSON-only output and names the exact keys the
// response must carry; DecodeOracleJSON then tolerates code fences and prose
// around the payload. Images travel inline as base64 data URLs in multimodal
// content parts.
//
// # Retry Behaviour
//
// Transient failures (HTTP 408/429/5xx, network timeouts, empty completions)
// retry with a fixed delay between attempts, 3 attempts and 10s apart by
// default. A well-formed response missing a required field wraps
// services.ErrValidation and is never retried: the model already answered,
// it just answered uselessly, so the caller's fallback applies.
package oracle
