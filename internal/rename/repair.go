package rename

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"magpie/internal/logging"
	"magpie/internal/runlog"
)

// tempPrefix marks a file parked under a transient name during a repair
// attempt. Temp names never contain the processed marker, so a file orphaned
// by an interrupted repair is picked up again by the next run.
const tempPrefix = "temp_retry_"

// retryQueue collects filenames needing individual repair, once each. It
// lives for a single run and is never persisted.
type retryQueue struct {
	names []string
	seen  map[string]struct{}
}

func newRetryQueue() *retryQueue {
	return &retryQueue{seen: make(map[string]struct{})}
}

func (q *retryQueue) add(name string) {
	if _, ok := q.seen[name]; ok {
		return
	}
	q.seen[name] = struct{}{}
	q.names = append(q.names, name)
}

func (s *Stage) repairPass(ctx context.Context, run *runlog.Run, dir string, retry *retryQueue) {
	if len(retry.names) == 0 {
		return
	}
	logger := logging.WithContext(ctx, s.logger)
	logger.Info("starting repair pass", logging.Int("queued", len(retry.names)))

	for _, name := range retry.names {
		if ctx.Err() != nil {
			return
		}
		s.repairOne(ctx, run, dir, name)
	}
}

// repairOne retries a single failed image. The file is parked under a unique
// temp name before the oracle call; any failure restores the original name.
func (s *Stage) repairOne(ctx context.Context, run *runlog.Run, dir, name string) {
	logger := logging.WithContext(ctx, s.logger)

	ext := filepath.Ext(name)
	tempName := tempPrefix + uuid.NewString()[:8] + ext
	originalPath := filepath.Join(dir, name)
	tempPath := filepath.Join(dir, tempName)

	if err := os.Rename(originalPath, tempPath); err != nil {
		logger.Warn("repair could not park file",
			logging.String("entry", name),
			logging.Error(err))
		s.journal(ctx, run, name, runlog.ActionRepairFailed, "", err.Error())
		return
	}

	attachment, err := loadAttachment(tempPath)
	if err != nil {
		s.restoreAfterFailure(ctx, run, dir, name, tempName, err)
		return
	}

	title, err := s.agent.DescribeImage(ctx, attachment)
	if err != nil {
		s.restoreAfterFailure(ctx, run, dir, name, tempName, err)
		return
	}

	newName, err := s.renameTo(dir, tempName, title)
	if err != nil {
		s.restoreAfterFailure(ctx, run, dir, name, tempName, err)
		return
	}

	logger.Info("repair renamed image",
		logging.String("entry", name),
		logging.String("new_name", newName))
	s.journal(ctx, run, name, runlog.ActionRepaired, newName, "")
	run.ImagesRenamed++
	run.ImagesRepaired++
}

// restoreAfterFailure puts a parked file back under its original name. A
// restore that itself fails leaves the temp file behind and is flagged for
// manual intervention.
func (s *Stage) restoreAfterFailure(ctx context.Context, run *runlog.Run, dir, name, tempName string, cause error) {
	logger := logging.WithContext(ctx, s.logger)
	logger.Warn("repair failed, restoring original name",
		logging.String("entry", name),
		logging.Error(cause))
	s.journal(ctx, run, name, runlog.ActionRepairFailed, "", cause.Error())

	if err := os.Rename(filepath.Join(dir, tempName), filepath.Join(dir, name)); err != nil {
		logger.Error("could not restore original name",
			logging.Alert("manual intervention required"),
			logging.String("entry", name),
			logging.String("temp_name", tempName),
			logging.Error(err))
		s.journal(ctx, run, name, runlog.ActionRestoreFailed, tempName, err.Error())
	}
}
