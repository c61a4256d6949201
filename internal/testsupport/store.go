package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"magpie/internal/config"
	"magpie/internal/runlog"
)

// MustOpenRunlog opens a runlog.Store for tests and registers cleanup.
func MustOpenRunlog(t testing.TB, cfg *config.Config) *runlog.Store {
	t.Helper()

	store, err := runlog.Open(cfg)
	if err != nil {
		t.Fatalf("runlog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun creates a fresh run row for tests using the provided store.
func NewRun(t testing.TB, store *runlog.Store, opts runlog.Options) *runlog.Run {
	t.Helper()

	run, err := store.CreateRun(context.Background(), uuid.NewString(), opts)
	if err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}
