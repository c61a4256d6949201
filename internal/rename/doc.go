// Package rename implements the image describe-and-rename pass.
//
// Eligible images (configured extensions, no processed marker in the name)
// are sent to the oracle in fixed-size batches and renamed in place to the
// cleaned titles it returns. Files that fail anywhere along the way are
// queued and retried one at a time in a repair pass: each is parked under a
// temp name first so a failed oracle call can restore the original name
// instead of losing it. The processed marker makes the whole pass idempotent.
package rename
