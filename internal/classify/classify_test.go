package classify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"magpie/internal/extmap"
	"magpie/internal/logging"
	"magpie/internal/oracle"
)

type fakeOracle struct {
	classifyExtension func(ctx context.Context, ext string, categories []string) (oracle.FolderRecommendation, error)
	classifyCode      func(ctx context.Context, filename, snippet string) (oracle.CodeClassification, error)
}

func (f *fakeOracle) ClassifyExtension(ctx context.Context, ext string, categories []string) (oracle.FolderRecommendation, error) {
	if f.classifyExtension == nil {
		return oracle.FolderRecommendation{}, errors.New("unexpected ClassifyExtension call")
	}
	return f.classifyExtension(ctx, ext, categories)
}

func (f *fakeOracle) ClassifyCode(ctx context.Context, filename, snippet string) (oracle.CodeClassification, error) {
	if f.classifyCode == nil {
		return oracle.CodeClassification{}, errors.New("unexpected ClassifyCode call")
	}
	return f.classifyCode(ctx, filename, snippet)
}

func newRules(t *testing.T) *extmap.Map {
	t.Helper()
	return extmap.Load(filepath.Join(t.TempDir(), "extension_map.json"), logging.NewNop())
}

func TestResolveMappedExtensionSkipsOracle(t *testing.T) {
	fake := &fakeOracle{
		classifyExtension: func(context.Context, string, []string) (oracle.FolderRecommendation, error) {
			t.Error("mapped extension must not escalate to the oracle")
			return oracle.FolderRecommendation{}, nil
		},
	}
	resolver := NewResolver(newRules(t), fake, logging.NewNop())

	decision, err := resolver.Resolve(context.Background(), "/staging/report.pdf")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if decision.Folder != "Documents" || decision.Source != SourceRule {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestResolveCodeContentPass(t *testing.T) {
	dir := t.TempDir()
	var content strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&content, "line %d\n", i)
	}
	codePath := filepath.Join(dir, "scraper.py")
	if err := os.WriteFile(codePath, []byte(content.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	fake := &fakeOracle{
		classifyCode: func(_ context.Context, filename, snippet string) (oracle.CodeClassification, error) {
			if filename != "scraper.py" {
				t.Errorf("unexpected filename %q", filename)
			}
			if got := len(strings.Split(snippet, "\n")); got != 50 {
				t.Errorf("snippet should cap at 50 lines, got %d", got)
			}
			return oracle.CodeClassification{ProjectName: "Web Scraper", SuggestedFolder: "Web Scraper"}, nil
		},
	}
	resolver := NewResolver(newRules(t), fake, logging.NewNop())

	decision, err := resolver.Resolve(context.Background(), codePath)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if decision.Folder != "Code_Projects/Web_Scraper" {
		t.Fatalf("expected nested code project folder, got %q", decision.Folder)
	}
	if decision.Source != SourceCodeContent || decision.Category != "Code" {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestResolveCodeContentFailureKeepsCode(t *testing.T) {
	dir := t.TempDir()
	codePath := filepath.Join(dir, "util.js")
	if err := os.WriteFile(codePath, []byte("console.log('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fake := &fakeOracle{
		classifyCode: func(context.Context, string, string) (oracle.CodeClassification, error) {
			return oracle.CodeClassification{}, errors.New("oracle unavailable")
		},
	}
	resolver := NewResolver(newRules(t), fake, logging.NewNop())

	decision, err := resolver.Resolve(context.Background(), codePath)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if decision.Folder != "Code" || decision.Source != SourceRule {
		t.Fatalf("expected plain Code decision, got %+v", decision)
	}
}

func TestResolveEscalationRecordsMapping(t *testing.T) {
	rules := newRules(t)
	calls := 0
	fake := &fakeOracle{
		classifyExtension: func(_ context.Context, ext string, categories []string) (oracle.FolderRecommendation, error) {
			calls++
			if ext != ".blend" {
				t.Errorf("unexpected extension %q", ext)
			}
			for _, category := range categories {
				if category == extmap.ExclusionsKey {
					t.Error("categories context must exclude the Exclusions group")
				}
			}
			return oracle.FolderRecommendation{SuggestedFolderName: "Blender Files", IsNewCategory: true}, nil
		},
	}
	resolver := NewResolver(rules, fake, logging.NewNop())

	decision, err := resolver.Resolve(context.Background(), "/staging/model.blend")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if decision.Folder != "Blender_Files" || decision.Source != SourceOracle {
		t.Fatalf("unexpected decision %+v", decision)
	}

	// Same extension again resolves from the updated map.
	decision, err = resolver.Resolve(context.Background(), "/staging/donut.blend")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if decision.Source != SourceRule || decision.Folder != "Blender_Files" {
		t.Fatalf("expected rule match after Record, got %+v", decision)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one escalation, got %d", calls)
	}
}

func TestResolveOracleFailureFallsBack(t *testing.T) {
	fake := &fakeOracle{
		classifyExtension: func(context.Context, string, []string) (oracle.FolderRecommendation, error) {
			return oracle.FolderRecommendation{}, errors.New("exhausted attempts")
		},
	}
	resolver := NewResolver(newRules(t), fake, logging.NewNop())

	decision, err := resolver.Resolve(context.Background(), "/staging/data.xyz")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if decision.Folder != FallbackDir || decision.Source != SourceFallback {
		t.Fatalf("expected fallback decision, got %+v", decision)
	}
}

func TestResolveExtensionlessUsesFallback(t *testing.T) {
	fake := &fakeOracle{
		classifyExtension: func(context.Context, string, []string) (oracle.FolderRecommendation, error) {
			t.Error("extensionless files must not escalate")
			return oracle.FolderRecommendation{}, nil
		},
	}
	resolver := NewResolver(newRules(t), fake, logging.NewNop())

	decision, err := resolver.Resolve(context.Background(), "/staging/Makefile")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if decision.Folder != FallbackDir {
		t.Fatalf("expected fallback decision, got %+v", decision)
	}
}

func TestResolveContextCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeOracle{
		classifyExtension: func(ctx context.Context, _ string, _ []string) (oracle.FolderRecommendation, error) {
			cancel()
			return oracle.FolderRecommendation{}, ctx.Err()
		},
	}
	resolver := NewResolver(newRules(t), fake, logging.NewNop())

	if _, err := resolver.Resolve(ctx, "/staging/data.xyz"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
