package rename

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"magpie/internal/config"
	"magpie/internal/fileutil"
	"magpie/internal/logging"
	"magpie/internal/oracle"
	"magpie/internal/runlog"
	"magpie/internal/services"
	"magpie/internal/stage"
	"magpie/internal/textutil"
)

const stageName = "rename"

// ImagesDir is the archive category folder the rename pass operates on.
const ImagesDir = "Images"

var sleepBetweenBatches = time.Sleep

// Agent is the slice of the oracle client the renamer consumes.
type Agent interface {
	DescribeImageBatch(ctx context.Context, batch []oracle.ImageAttachment) (map[string]oracle.ImageDescription, error)
	DescribeImage(ctx context.Context, img oracle.ImageAttachment) (string, error)
}

// Stage renames images in the archive's Images folder to descriptive titles
// from the oracle. Files are described in batches; anything a batch could not
// handle is retried individually in a repair pass at the end of the run.
type Stage struct {
	cfg    *config.Config
	store  *runlog.Store
	agent  Agent
	logger *slog.Logger
}

// New constructs the image rename stage handler.
func New(cfg *config.Config, store *runlog.Store, agent Agent, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:    cfg,
		store:  store,
		agent:  agent,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// Prepare verifies the pass has an oracle to talk to.
func (s *Stage) Prepare(ctx context.Context, run *runlog.Run) error {
	if s.agent == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "check oracle", "Image renaming requires a configured oracle client", nil)
	}
	logging.WithContext(ctx, s.logger).Info("starting image rename pass",
		logging.String("dir", filepath.Join(s.cfg.Paths.ArchiveDir, ImagesDir)),
	)
	return nil
}

// Execute renames every eligible image, batch by batch, then repairs the
// stragglers. A missing Images folder means the sorter has produced no images
// yet and the pass is a no-op.
func (s *Stage) Execute(ctx context.Context, run *runlog.Run) error {
	logger := logging.WithContext(ctx, s.logger)

	imagesDir := filepath.Join(s.cfg.Paths.ArchiveDir, ImagesDir)
	info, err := os.Stat(imagesDir)
	if err != nil || !info.IsDir() {
		logger.Info("images folder not present, nothing to rename", logging.String("dir", imagesDir))
		return nil
	}

	eligible, err := s.eligibleImages(imagesDir)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "list images", "Images folder could not be read", err)
	}
	logger.Info("found images to rename",
		logging.Int("eligible", len(eligible)),
		logging.Int("batch_size", s.batchSize()),
	)

	retry := newRetryQueue()
	batchSize := s.batchSize()
	for start := 0; start < len(eligible); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		s.processBatch(ctx, run, imagesDir, eligible[start:end], retry)

		if delay := s.delay(); delay > 0 && end < len(eligible) {
			sleepBetweenBatches(delay)
		}
	}

	s.repairPass(ctx, run, imagesDir, retry)

	logger.Info("image rename pass complete",
		logging.Int("renamed", run.ImagesRenamed),
		logging.Int("repaired", run.ImagesRepaired),
	)
	return nil
}

// HealthCheck verifies the configuration the rename pass depends on.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	if s.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if s.agent == nil {
		return stage.Unhealthy(stageName, "oracle client not configured")
	}
	if len(s.cfg.Rename.ImageExtensions) == 0 {
		return stage.Unhealthy(stageName, "no image extensions configured")
	}
	return stage.Healthy(stageName)
}

// processBatch describes one batch and renames each image the oracle titled.
// Undecodable files, files the response skipped, and failed renames all land
// in the retry queue; a batch-wide failure queues the whole openable subset.
func (s *Stage) processBatch(ctx context.Context, run *runlog.Run, dir string, names []string, retry *retryQueue) {
	logger := logging.WithContext(ctx, s.logger)

	attachments := make([]oracle.ImageAttachment, 0, len(names))
	for _, name := range names {
		attachment, err := loadAttachment(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("image could not be decoded, queued for repair",
				logging.String("entry", name),
				logging.Error(err))
			retry.add(name)
			continue
		}
		attachments = append(attachments, attachment)
	}
	if len(attachments) == 0 {
		return
	}

	titles, err := s.agent.DescribeImageBatch(ctx, attachments)
	if err != nil {
		logger.Warn("batch describe failed, queueing batch for repair",
			logging.Int("batch", len(attachments)),
			logging.Error(err))
		for _, attachment := range attachments {
			retry.add(attachment.Filename)
		}
		return
	}

	for _, attachment := range attachments {
		description, ok := titles[attachment.Filename]
		if !ok {
			logger.Warn("no title returned for image, queued for repair",
				logging.String("entry", attachment.Filename))
			retry.add(attachment.Filename)
			continue
		}

		newName, err := s.renameTo(dir, attachment.Filename, description.ShortTitle)
		if err != nil {
			logger.Warn("rename failed, queued for repair",
				logging.String("entry", attachment.Filename),
				logging.Error(err))
			retry.add(attachment.Filename)
			continue
		}

		logger.Info("image renamed",
			logging.String("entry", attachment.Filename),
			logging.String("new_name", newName))
		s.journal(ctx, run, attachment.Filename, runlog.ActionRenamed, newName, "")
		run.ImagesRenamed++
	}
}

// eligibleImages lists regular files carrying a configured image extension
// whose name does not already contain the processed marker.
func (s *Stage) eligibleImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	marker := s.marker()
	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if strings.Contains(name, marker) {
			continue
		}
		if s.isImageName(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *Stage) isImageName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range s.cfg.Rename.ImageExtensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// renameTo renames an image in place to the cleaned title plus the processed
// marker, keeping the original extension and suffixing past collisions. The
// final basename is returned.
func (s *Stage) renameTo(dir, currentName, title string) (string, error) {
	cleaned := textutil.CleanTitle(title)
	if cleaned == "" {
		return "", fmt.Errorf("title %q cleans to nothing", title)
	}
	ext := filepath.Ext(currentName)
	target, err := fileutil.AvailablePath(dir, cleaned+s.marker(), ext)
	if err != nil {
		return "", err
	}
	if err := os.Rename(filepath.Join(dir, currentName), target); err != nil {
		return "", err
	}
	return filepath.Base(target), nil
}

func (s *Stage) batchSize() int {
	if size := s.cfg.Rename.BatchSize; size > 0 {
		return size
	}
	return 10
}

func (s *Stage) delay() time.Duration {
	if secs := s.cfg.Rename.BatchDelaySeconds; secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func (s *Stage) marker() string {
	if marker := s.cfg.Rename.ProcessedMarker; marker != "" {
		return marker
	}
	return "_DESC"
}

func (s *Stage) journal(ctx context.Context, run *runlog.Run, name string, action runlog.Action, destination, detail string) {
	if s.store == nil {
		return
	}
	entry := &runlog.Entry{
		RunID:       run.ID,
		Stage:       stageName,
		Name:        name,
		Action:      action,
		Destination: destination,
		Detail:      detail,
	}
	if err := s.store.AppendEntry(ctx, entry); err != nil {
		logging.WithContext(ctx, s.logger).Warn("journal write failed", logging.Error(err))
	}
}

// loadAttachment reads an image and verifies its header decodes before the
// bytes are sent anywhere.
func loadAttachment(path string) (oracle.ImageAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return oracle.ImageAttachment{}, err
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return oracle.ImageAttachment{}, fmt.Errorf("decode image header: %w", err)
	}
	return oracle.ImageAttachment{
		Filename: filepath.Base(path),
		MIMEType: mimeFor(filepath.Ext(path)),
		Data:     data,
	}, nil
}

func mimeFor(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return ""
	}
}
