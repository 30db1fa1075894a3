package reporting

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBackendFromMetadataDefaultsToUnknown(t *testing.T) {
	if got := backendFromMetadata(nil); got != "unknown" {
		t.Errorf("expected unknown backend for nil metadata, got %q", got)
	}
	if got := backendFromMetadata(map[string]any{"backend": "mock"}); got != "mock" {
		t.Errorf("expected mock backend, got %q", got)
	}
}

func TestModelFromMetadataDefaultsToUnknown(t *testing.T) {
	if got := modelFromMetadata(nil); got != "unknown" {
		t.Errorf("expected unknown model for nil metadata, got %q", got)
	}
	if got := modelFromMetadata(map[string]any{"model": "gpt-4o-mini"}); got != "gpt-4o-mini" {
		t.Errorf("expected gpt-4o-mini, got %q", got)
	}
	if got := modelFromMetadata(map[string]any{"model": ""}); got != "unknown" {
		t.Errorf("expected unknown for an empty model string, got %q", got)
	}
}

func TestWriteMarkdownSinkWritesReportContent(t *testing.T) {
	dir := t.TempDir()
	s := &Service{sinkPath: dir, log: zerolog.Nop()}
	r := &Report{
		RepoExternalID: "acme/widgets",
		WindowStart:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:      time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC),
		Summary:        "acme/widgets is on track with 3 events.",
		Highlights:     []string{"Delivered 1 feature PR"},
		RiskFlags:      []string{"1 bug issue requires attention"},
	}

	if err := s.writeMarkdownSink(r); err != nil {
		t.Fatalf("writeMarkdownSink: %v", err)
	}

	filename := "acme__widgets_20260108.md"
	content, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		t.Fatalf("expected sink file %s to exist: %v", filename, err)
	}
	text := string(content)
	for _, want := range []string{"acme/widgets", "Delivered 1 feature PR", "1 bug issue requires attention"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected sink content to contain %q, got %q", want, text)
		}
	}
}
