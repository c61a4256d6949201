package preflight

import (
	"context"
	"path/filepath"

	"magpie/internal/config"
	"magpie/internal/pipeline"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check a run depends on and returns the results in
// display order. Directory checks come first because most later failures
// (lock probes, map reads) follow from a missing tree; the oracle probe runs
// last since it is the only check that leaves the machine.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	return []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Archive directory", cfg.Paths.ArchiveDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckCategoryMap("Category map", cfg.Paths.MapFile),
		CheckRunLock("Run lock", filepath.Join(cfg.Paths.LogDir, pipeline.LockFileName)),
		CheckOracle(ctx, cfg.GetOracle()),
	}
}

// AllPassed reports whether every result in the list passed.
func AllPassed(results []Result) bool {
	for _, res := range results {
		if !res.Passed {
			return false
		}
	}
	return true
}
