package classify

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"magpie/internal/extmap"
	"magpie/internal/logging"
	"magpie/internal/oracle"
	"magpie/internal/textutil"
)

const (
	// CodeProjectsDir nests content-classified code under the archive root.
	CodeProjectsDir = "Code_Projects"
	// FallbackDir receives files the oracle could not classify. Terminal:
	// nothing re-escalates files once they land here.
	FallbackDir = "Unsorted_Agent_Failed"

	codeCategory = "Code"
	snippetLines = 50
)

// Source records which mechanism produced a decision.
type Source string

const (
	SourceRule        Source = "rule"
	SourceCodeContent Source = "code_content"
	SourceOracle      Source = "oracle"
	SourceFallback    Source = "fallback"
)

// Decision names the destination folder for one staged file, as a
// slash-separated path relative to the archive root.
type Decision struct {
	Folder   string
	Category string
	Source   Source
}

// Oracle is the slice of the oracle client the resolver consumes.
type Oracle interface {
	ClassifyExtension(ctx context.Context, ext string, categories []string) (oracle.FolderRecommendation, error)
	ClassifyCode(ctx context.Context, filename, snippet string) (oracle.CodeClassification, error)
}

// Resolver decides where staged files belong: category map first, a
// content-based pass for code files, oracle escalation for unknown
// extensions, and a fixed fallback folder when the oracle fails.
type Resolver struct {
	rules  *extmap.Map
	oracle Oracle
	logger *slog.Logger
}

// NewResolver constructs a resolver over the supplied category map and
// oracle client.
func NewResolver(rules *extmap.Map, oc Oracle, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		rules:  rules,
		oracle: oc,
		logger: logging.NewComponentLogger(logger, "classify"),
	}
}

// Resolve returns the destination decision for the file at path. Every
// failure mode resolves to a usable folder, so the only returned error is
// context cancellation, which aborts the run instead of misfiling the rest
// of the staging directory.
func (r *Resolver) Resolve(ctx context.Context, filePath string) (Decision, error) {
	name := filepath.Base(filePath)
	ext := strings.ToLower(filepath.Ext(name))

	if category, ok := r.rules.Match(ext); ok {
		if category == codeCategory {
			return r.resolveCode(ctx, filePath, name, category)
		}
		return Decision{Folder: category, Category: category, Source: SourceRule}, nil
	}

	if ext == "" {
		r.logger.Info("no extension to classify, using fallback folder",
			logging.String("entry", name),
			logging.String("folder", FallbackDir))
		return Decision{Folder: FallbackDir, Source: SourceFallback}, nil
	}

	return r.escalate(ctx, name, ext)
}

// resolveCode runs the content-based secondary pass for files the map
// classified as Code. Any failure keeps the plain Code classification.
func (r *Resolver) resolveCode(ctx context.Context, filePath, name, category string) (Decision, error) {
	ruleDecision := Decision{Folder: category, Category: category, Source: SourceRule}

	snippet, err := readSnippet(filePath)
	if err != nil {
		r.logger.Warn("could not read code snippet",
			logging.String("entry", name),
			logging.Error(err))
		return ruleDecision, nil
	}

	classification, err := r.oracle.ClassifyCode(ctx, name, snippet)
	if err != nil {
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		r.logger.Warn("code content classification failed",
			logging.String("entry", name),
			logging.Error(err))
		return ruleDecision, nil
	}

	folder := textutil.CleanName(classification.SuggestedFolder)
	if folder == "" {
		return ruleDecision, nil
	}

	r.logger.Info("code file classified by content",
		logging.String("entry", name),
		logging.String("project", classification.ProjectName),
		logging.String("folder", folder))

	return Decision{
		Folder:   path.Join(CodeProjectsDir, folder),
		Category: category,
		Source:   SourceCodeContent,
	}, nil
}

// escalate asks the oracle to classify an unmapped extension and records the
// learned binding so later files with the same extension match directly.
func (r *Resolver) escalate(ctx context.Context, name, ext string) (Decision, error) {
	recommendation, err := r.oracle.ClassifyExtension(ctx, ext, r.rules.Categories())
	if err != nil {
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		r.logger.Warn("extension classification failed, using fallback folder",
			logging.String("entry", name),
			logging.String("extension", ext),
			logging.String("folder", FallbackDir),
			logging.Error(err))
		return Decision{Folder: FallbackDir, Source: SourceFallback}, nil
	}

	category, err := r.rules.Record(ext, recommendation.SuggestedFolderName)
	if err != nil {
		if category == "" {
			r.logger.Warn("oracle suggestion unusable, using fallback folder",
				logging.String("entry", name),
				logging.String("extension", ext),
				logging.String("suggestion", recommendation.SuggestedFolderName),
				logging.Error(err))
			return Decision{Folder: FallbackDir, Source: SourceFallback}, nil
		}
		// The in-memory binding still holds, so the file can move; only the
		// durable copy is stale.
		r.logger.Error("learned mapping could not be persisted",
			logging.String("extension", ext),
			logging.String("category", category),
			logging.Error(err))
	}

	r.logger.Info("extension classified by oracle",
		logging.String("entry", name),
		logging.String("extension", ext),
		logging.String("category", category),
		logging.Bool("new_category", recommendation.IsNewCategory))

	return Decision{Folder: category, Category: category, Source: SourceOracle}, nil
}

// readSnippet returns up to the first snippetLines lines of the file.
func readSnippet(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open code file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for len(lines) < snippetLines && scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read code file: %w", err)
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("code file %s is empty", filepath.Base(filePath))
	}
	return strings.Join(lines, "\n"), nil
}
