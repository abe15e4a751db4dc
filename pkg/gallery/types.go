// Package gallery discovers the folder tree of a remote image gallery by
// crawling its HTML directory listings, with signed-URL issuance, cache
// read-through, and manifest-based staleness checks around the crawl.
package gallery

import (
	"time"

	"github.com/metroboards/galleryscan/internal/manifest"
)

// ImageRef points at one image discovered inside a folder.
type ImageRef struct {
	// Name is the display name, the href's base without the directory part.
	Name string `json:"name"`
	// Path is the href exactly as discovered in the listing.
	Path string `json:"path"`
	// URL is the absolute, fetchable location.
	URL string `json:"url"`
	// FileSize and LastModified are filled only when the listing exposes
	// them; no per-file request is ever made for them.
	FileSize     int64      `json:"fileSize,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty"`
}

// Node is one folder in the discovered gallery tree. Nodes are built
// bottom-up during a single scan and immutable afterwards.
type Node struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Images     []ImageRef `json:"images"`
	Subfolders []Node     `json:"subfolders,omitempty"`
	// IsCategory is true iff the folder has subfolders and no direct
	// images.
	IsCategory bool `json:"isCategory"`
	// Level is the crawl depth; folders in the root listing are level 0.
	Level int `json:"level"`
}

// ScanStats summarizes one scan.
type ScanStats struct {
	Folders       int           `json:"folders"`
	Images        int           `json:"images"`
	Requests      int           `json:"requests"`
	FailedFolders int           `json:"failed_folders"`
	Duration      time.Duration `json:"duration"`
	FromCache     bool          `json:"from_cache"`
}

// Summary is the condensed view of a gallery used for staleness checks.
type Summary struct {
	Folders     []manifest.FolderCount `json:"folders"`
	TotalImages int                    `json:"totalImages"`
	Hash        string                 `json:"hash"`
}

// StalenessReport is the answer to "does the cached manifest still match
// the remote gallery".
type StalenessReport struct {
	NeedsRefresh    bool               `json:"needsRefresh"`
	Reason          string             `json:"reason"`
	CurrentManifest *manifest.Manifest `json:"currentCache,omitempty"`
	CurrentGallery  *Summary           `json:"currentGallery,omitempty"`
}

func countTree(nodes []Node) (folders, images int) {
	for _, n := range nodes {
		folders++
		images += len(n.Images)
		f, i := countTree(n.Subfolders)
		folders += f
		images += i
	}
	return folders, images
}

func flattenCounts(nodes []Node) []manifest.FolderCount {
	var counts []manifest.FolderCount
	for _, n := range nodes {
		counts = append(counts, manifest.FolderCount{
			Name:       n.Name,
			ImageCount: len(n.Images),
		})
		counts = append(counts, flattenCounts(n.Subfolders)...)
	}
	return counts
}
