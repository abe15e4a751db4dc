// Package fingerprint reduces a discovered gallery tree to a stable hash and
// decides whether a persisted manifest is stale against it.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/metroboards/galleryscan/internal/manifest"
)

// HashLength is the hex-prefix length kept from the full SHA-256 digest.
// Short enough to store cheaply, long enough that accidental collision is
// negligible for change detection.
const HashLength = 16

// Compute returns the structural fingerprint of a folder list. The pairs are
// sorted by name first, so the hash is independent of crawl and traversal
// order; only renames and image-count changes move it.
func Compute(folders []manifest.FolderCount) string {
	sorted := make([]manifest.FolderCount, len(folders))
	copy(sorted, folders)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ImageCount < sorted[j].ImageCount
	})

	parts := make([]string, 0, len(sorted))
	for _, f := range sorted {
		parts = append(parts, fmt.Sprintf("%s:%d", f.Name, f.ImageCount))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:HashLength]
}

// Verdict is the result of a staleness check.
type Verdict struct {
	Stale  bool
	Reason string
}

// IsStale compares a loaded manifest against a freshly discovered folder
// list. loadErr carries the store's load failure, if any. The reasons are
// ordered by specificity: a structural change is reported before age, because
// an operator diagnosing an invalidation needs the more precise cause first.
func IsStale(m *manifest.Manifest, loadErr error, fresh []manifest.FolderCount, maxAge time.Duration) Verdict {
	if loadErr != nil {
		return Verdict{Stale: true, Reason: "cache manifest corrupted"}
	}
	if m == nil {
		return Verdict{Stale: true, Reason: "no cache exists"}
	}

	if Compute(m.Folders) != Compute(fresh) {
		return Verdict{Stale: true, Reason: "gallery structure changed"}
	}

	age := time.Since(m.Generated)
	if maxAge > 0 && age > maxAge {
		days := int(age.Hours() / 24)
		return Verdict{Stale: true, Reason: fmt.Sprintf("cache older than %d days", days)}
	}

	return Verdict{Stale: false, Reason: "cache is up to date"}
}
