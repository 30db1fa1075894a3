package githubsource

import (
	"testing"
	"time"

	"github.com/ghillie/ghillie/bronze"
)

func TestNoiseFilterIgnoresAuthor(t *testing.T) {
	f := CompileNoiseFilters(NoiseFilterConfig{Enabled: true, IgnoreAuthors: []string{"dependabot[bot]"}})
	ev := IngestedEvent{Payload: bronze.Payload{"author_login": "Dependabot[bot]"}}
	if !f.ShouldIgnore(ev) {
		t.Error("expected case-insensitive author match to be ignored")
	}
}

func TestNoiseFilterIgnoresLabel(t *testing.T) {
	f := CompileNoiseFilters(NoiseFilterConfig{Enabled: true, IgnoreLabels: []string{"chore"}})
	ev := IngestedEvent{Payload: bronze.Payload{"labels": []any{"CHORE", "feature"}}}
	if !f.ShouldIgnore(ev) {
		t.Error("expected case-insensitive label match to be ignored")
	}
}

func TestNoiseFilterIgnoresTitlePrefix(t *testing.T) {
	f := CompileNoiseFilters(NoiseFilterConfig{Enabled: true, IgnoreTitlePrefixes: []string{"chore:"}})
	ev := IngestedEvent{Payload: bronze.Payload{"title": "Chore: bump deps"}}
	if !f.ShouldIgnore(ev) {
		t.Error("expected prefix match to be ignored")
	}
}

func TestNoiseFilterIgnoresPathGlob(t *testing.T) {
	f := CompileNoiseFilters(NoiseFilterConfig{Enabled: true, IgnorePaths: []string{"vendor/**"}})
	ev := IngestedEvent{Payload: bronze.Payload{"path": "vendor/pkg/file.go"}}
	if !f.ShouldIgnore(ev) {
		t.Error("expected glob match to be ignored")
	}
}

func TestNoiseFilterDisabledConfigContributesNothing(t *testing.T) {
	f := CompileNoiseFilters(NoiseFilterConfig{Enabled: false, IgnoreAuthors: []string{"bot"}})
	ev := IngestedEvent{Payload: bronze.Payload{"author_login": "bot"}}
	if f.ShouldIgnore(ev) {
		t.Error("disabled config must not contribute ignore rules")
	}
}

func TestNoiseFilterPassesNonMatchingEvent(t *testing.T) {
	f := CompileNoiseFilters(NoiseFilterConfig{Enabled: true, IgnoreAuthors: []string{"bot"}})
	ev := IngestedEvent{
		EventType:  "github.commit",
		OccurredAt: time.Now(),
		Payload:    bronze.Payload{"author_login": "human"},
	}
	if f.ShouldIgnore(ev) {
		t.Error("non-matching event should not be ignored")
	}
}

func TestEmptyNoiseFilterIgnoresNothing(t *testing.T) {
	f := EmptyNoiseFilter()
	ev := IngestedEvent{Payload: bronze.Payload{"author_login": "anyone"}}
	if f.ShouldIgnore(ev) {
		t.Error("empty filter must ignore nothing")
	}
}
