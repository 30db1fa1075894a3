package githubsource

import (
	"path/filepath"
	"strings"
)

// NoiseFilterConfig is the catalogue-supplied, per-category noise
// configuration described in spec.md §4.4.
type NoiseFilterConfig struct {
	Enabled             bool
	IgnoreAuthors       []string
	IgnoreLabels        []string
	IgnoreTitlePrefixes []string
	IgnorePaths         []string
}

// NoiseFilter is the compiled, case-folded matcher built from one or more
// NoiseFilterConfig values. Compilation never fails: a catalogue read
// failure degrades to an empty, always-false filter rather than blocking
// ingestion, matching the original noise compiler's degrade-to-no-op
// behavior.
type NoiseFilter struct {
	authors       map[string]struct{}
	labels        map[string]struct{}
	titlePrefixes []string
	paths         []string
}

// CompileNoiseFilters merges any number of catalogue-supplied configs into
// one filter, unioning each category. A disabled config still contributes
// nothing, matching per-category opt-in semantics.
func CompileNoiseFilters(configs ...NoiseFilterConfig) *NoiseFilter {
	f := &NoiseFilter{
		authors: map[string]struct{}{},
		labels:  map[string]struct{}{},
	}
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		for _, a := range cfg.IgnoreAuthors {
			f.authors[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
		}
		for _, l := range cfg.IgnoreLabels {
			f.labels[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
		}
		for _, p := range cfg.IgnoreTitlePrefixes {
			f.titlePrefixes = append(f.titlePrefixes, strings.ToLower(p))
		}
		for _, g := range cfg.IgnorePaths {
			f.paths = append(f.paths, filepath.ToSlash(g))
		}
	}
	return f
}

// EmptyNoiseFilter returns a filter that excludes nothing, used when no
// catalogue configuration is available.
func EmptyNoiseFilter() *NoiseFilter { return CompileNoiseFilters() }

// ShouldIgnore reports whether an event matches any configured ignore
// rule: author, label, title/message prefix, or path glob.
func (f *NoiseFilter) ShouldIgnore(event IngestedEvent) bool {
	if f == nil {
		return false
	}
	for _, author := range event.CandidateAuthors() {
		if _, ok := f.authors[strings.ToLower(author)]; ok {
			return true
		}
	}
	for _, label := range event.Labels() {
		if _, ok := f.labels[strings.ToLower(label)]; ok {
			return true
		}
	}
	title := strings.ToLower(event.TitleOrMessage())
	for _, prefix := range f.titlePrefixes {
		if strings.HasPrefix(title, prefix) {
			return true
		}
	}
	if path := filepath.ToSlash(event.Path()); path != "" {
		for _, pattern := range f.paths {
			if matched, _ := filepath.Match(pattern, path); matched {
				return true
			}
			if strings.Contains(pattern, "**") && matchDoubleStar(pattern, path) {
				return true
			}
		}
	}
	return false
}

// matchDoubleStar supports a single "**" path-spanning wildcard segment,
// which filepath.Match does not implement natively.
func matchDoubleStar(pattern, path string) bool {
	parts := strings.SplitN(pattern, "**", 2)
	if len(parts) != 2 {
		return false
	}
	prefix, suffix := strings.TrimSuffix(parts[0], "/"), strings.TrimPrefix(parts[1], "/")
	if prefix != "" && !strings.HasPrefix(path, prefix) {
		return false
	}
	if suffix != "" && !strings.HasSuffix(path, suffix) {
		return false
	}
	return true
}
