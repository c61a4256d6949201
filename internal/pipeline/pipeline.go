package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"magpie/internal/classify"
	"magpie/internal/config"
	"magpie/internal/extmap"
	"magpie/internal/logging"
	"magpie/internal/notifications"
	"magpie/internal/oracle"
	"magpie/internal/organize"
	"magpie/internal/pdfsort"
	"magpie/internal/rename"
	"magpie/internal/runlog"
	"magpie/internal/services"
	"magpie/internal/stage"
)

// LockFileName is the flock target under the log directory that enforces one
// run per archive at a time.
const LockFileName = "magpie.lock"

// Agent bundles the oracle operations the pipeline stages consume. The
// production oracle client satisfies it; tests substitute stubs.
type Agent interface {
	classify.Oracle
	rename.Agent
	pdfsort.Agent
}

type stageEntry struct {
	name    string
	handler stage.Handler
}

// Runner executes the enabled stages of a run strictly in order on a single
// background goroutine: organize, then rename, then pdfsort. A flock file in
// the log directory keeps concurrent invocations from racing over the same
// staging directory.
type Runner struct {
	cfg      *config.Config
	store    *runlog.Store
	logger   *slog.Logger
	notifier notifications.Service
	agent    Agent

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner constructs a pipeline runner with the production oracle client
// and the notifier derived from configuration.
func NewRunner(cfg *config.Config, store *runlog.Store, logger *slog.Logger) *Runner {
	return NewRunnerWithOptions(cfg, store, logger, notifications.NewService(cfg), newOracleClient(cfg))
}

// NewRunnerWithOptions constructs a pipeline runner with a custom notifier
// and oracle agent (used in tests).
func NewRunnerWithOptions(cfg *config.Config, store *runlog.Store, logger *slog.Logger, notifier notifications.Service, agent Agent) *Runner {
	lockPath := filepath.Join(cfg.Paths.LogDir, LockFileName)
	return &Runner{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		notifier: notifier,
		agent:    agent,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
}

func newOracleClient(cfg *config.Config) *oracle.Client {
	oc := cfg.GetOracle()
	return oracle.NewClient(oracle.Config{
		APIKey:            oc.APIKey,
		BaseURL:           oc.BaseURL,
		Model:             oc.Model,
		Referer:           oc.Referer,
		Title:             oc.Title,
		TimeoutSeconds:    oc.TimeoutSeconds,
		RetryAttempts:     oc.RetryAttempts,
		RetryDelaySeconds: oc.RetryDelaySeconds,
	})
}

// LockPath returns the flock target this runner guards runs with.
func (r *Runner) LockPath() string {
	return r.lockPath
}

// Start acquires the run lock, health-checks the enabled stages, records the
// run, and launches stage execution on a background goroutine. The returned
// run record carries the ID callers use to follow progress.
func (r *Runner) Start(ctx context.Context, opts runlog.Options) (*runlog.Run, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, errors.New("a run is already in progress")
	}

	if err := r.cfg.EnsureDirectories(); err != nil {
		r.mu.Unlock()
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "ensure directories", "Required directories could not be created", err)
	}

	ok, err := r.lock.TryLock()
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("another magpie run holds %s", r.lockPath)
	}

	stages := r.buildStages(opts)
	for _, st := range stages {
		if health := st.handler.HealthCheck(ctx); !health.Ready {
			_ = r.lock.Unlock()
			r.mu.Unlock()
			return nil, services.Wrap(services.ErrConfiguration, health.Name, "health check", health.Detail, nil)
		}
	}

	run, err := r.store.CreateRun(ctx, uuid.NewString(), opts)
	if err != nil {
		_ = r.lock.Unlock()
		r.mu.Unlock()
		return nil, fmt.Errorf("create run record: %w", err)
	}

	runCtx, cancel := context.WithCancel(services.WithRunID(ctx, run.ID))
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	go r.execute(runCtx, run, stages)
	return run, nil
}

// Wait blocks until the in-flight run, if any, has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop cancels the in-flight run and waits for it to wind down. Stages honor
// cancellation at oracle-call and entry boundaries, so already-committed
// moves stay committed.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// buildStages assembles the handlers for this run. The category map is
// reloaded per run so edits on disk between runs are honored.
func (r *Runner) buildStages(opts runlog.Options) []stageEntry {
	rules := extmap.Load(r.cfg.Paths.MapFile, r.logger)

	stages := []stageEntry{
		{name: "organize", handler: organize.New(r.cfg, r.store, rules, r.agent, r.logger)},
	}
	if opts.RenameImages {
		stages = append(stages, stageEntry{name: "rename", handler: rename.New(r.cfg, r.store, r.agent, r.logger)})
	}
	if opts.SortPDFs {
		stages = append(stages, stageEntry{name: "pdfsort", handler: pdfsort.New(r.cfg, r.store, r.agent, r.logger)})
	}
	return stages
}

func (r *Runner) execute(ctx context.Context, run *runlog.Run, stages []stageEntry) {
	defer r.wg.Done()
	defer r.release()

	logger := logging.WithContext(ctx, r.logger)
	start := time.Now()
	logger.Info("run started",
		logging.Bool("process_all", run.ProcessAll),
		logging.Bool("rename_images", run.RenameImages),
		logging.Bool("sort_pdfs", run.SortPDFs),
		logging.Int("stages", len(stages)),
	)

	err := r.runStages(ctx, run, stages)
	r.finishRun(ctx, run, err, time.Since(start))
}

// release returns the runner to its idle state. It runs after finishRun has
// persisted the final run record.
func (r *Runner) release() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.running = false
	r.mu.Unlock()

	if err := r.lock.Unlock(); err != nil {
		r.logger.Warn("could not release run lock",
			logging.String("lock", r.lockPath),
			logging.Error(err))
	}
}

// runStages walks the stage list in order, persisting accumulated counts
// after each stage. A stage error or panic stops the walk; later stages never
// run against a half-finished predecessor.
func (r *Runner) runStages(ctx context.Context, run *runlog.Run, stages []stageEntry) (err error) {
	current := "pipeline"
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: panic: %v", current, rec)
		}
	}()

	for _, st := range stages {
		current = st.name
		stageCtx := services.WithStage(ctx, st.name)
		stageLogger := logging.WithContext(stageCtx, r.logger)
		stageStart := time.Now()

		stageLogger.Info("stage started")
		if err := st.handler.Prepare(stageCtx, run); err != nil {
			return err
		}
		if err := st.handler.Execute(stageCtx, run); err != nil {
			return err
		}
		if err := r.store.UpdateRun(stageCtx, run); err != nil {
			return fmt.Errorf("persist stage result: %w", err)
		}
		stageLogger.Info("stage completed",
			logging.Duration("stage_duration", time.Since(stageStart)))
	}
	return nil
}

// finishRun marks the run record, persists it, and sends the single
// completion or failure notification. Persistence and notification outlive a
// canceled run context so an interrupted run still leaves a readable record.
func (r *Runner) finishRun(ctx context.Context, run *runlog.Run, runErr error, elapsed time.Duration) {
	logger := logging.WithContext(ctx, r.logger)
	finishCtx := context.WithoutCancel(ctx)

	if runErr != nil {
		run.MarkFailed(failureMessage(runErr))
		logger.Error("run failed",
			logging.Alert("run_failure"),
			logging.Error(runErr),
			logging.Duration("run_duration", elapsed))
	} else {
		run.MarkCompleted()
		logger.Info("run complete",
			logging.Int("files_moved", run.FilesMoved),
			logging.Int("folders_moved", run.FoldersMoved),
			logging.Int("images_renamed", run.ImagesRenamed),
			logging.Int("pdfs_sorted", run.PDFsSorted),
			logging.Duration("run_duration", elapsed))
	}

	if err := r.store.UpdateRun(finishCtx, run); err != nil {
		logger.Error("failed to persist run result", logging.Error(err))
	}

	if r.notifier == nil {
		return
	}
	var notifyErr error
	if runErr != nil {
		notifyErr = r.notifier.NotifyRunFailed(finishCtx, runErr, run.ID)
	} else {
		notifyErr = r.notifier.NotifyRunCompleted(finishCtx, run.Summary(), run.Duration())
	}
	if notifyErr != nil {
		logger.Debug("run notification failed", logging.Error(notifyErr))
	}
}

func failureMessage(err error) string {
	if err == nil {
		return "run failed without error detail"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "run failed without error detail"
	}
	return msg
}
