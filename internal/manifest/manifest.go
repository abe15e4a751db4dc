// Package manifest persists the snapshot of a discovered gallery tree used
// for staleness comparison.
package manifest

import "time"

// FolderCount is one folder's contribution to the structural fingerprint.
type FolderCount struct {
	Name       string `json:"name"`
	ImageCount int    `json:"imageCount"`
}

// Manifest is the last-persisted snapshot of the discovered tree's shape.
// It is written wholesale after a full crawl and read-only afterward; the
// next write supersedes it entirely.
type Manifest struct {
	Generated   time.Time     `json:"generated"`
	Version     string        `json:"version"`
	Folders     []FolderCount `json:"folders"`
	TotalImages int           `json:"totalImages"`
	Hash        string        `json:"hash"`
}

// Store persists and retrieves a manifest.
type Store interface {
	// Save replaces the stored manifest.
	Save(m *Manifest) error
	// Load returns the stored manifest, or (nil, nil) when none exists.
	// A present-but-unreadable manifest returns a non-nil error.
	Load() (*Manifest, error)
	// Close releases store resources.
	Close() error
}
