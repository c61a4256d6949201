package stage

import (
	"context"

	"magpie/internal/runlog"
)

// Handler describes the contract the pipeline runner needs from each stage.
// Prepare validates inputs and annotates the run before work starts, Execute
// does the work and accumulates outcome counts on the run, and HealthCheck
// reports whether the stage could run at all.
type Handler interface {
	Prepare(context.Context, *runlog.Run) error
	Execute(context.Context, *runlog.Run) error
	HealthCheck(context.Context) Health
}
