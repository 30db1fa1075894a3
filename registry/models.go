// Package registry is the tracked-repository catalogue: which
// repositories ingestion and reporting operate over, and their
// per-repository settings (default branch, documentation paths, noise
// filters), grounded on the original catalogue's repository registry.
package registry

import "github.com/ghillie/ghillie/githubsource"

// Entry is a catalogue row. It embeds the same shape the source-client
// package consumes directly, since the catalogue is the only producer of
// RepositoryInfo values in the running system.
type Entry = githubsource.RepositoryInfo
