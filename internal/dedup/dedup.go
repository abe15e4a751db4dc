// Package dedup tracks visited folder URLs during a crawl so cyclic or
// self-referencing listings terminate instead of looping.
package dedup

import (
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Visited is a set of folder URLs backed by a Bloom filter with an exact
// map behind it, so membership answers are never false positives.
type Visited struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

// NewVisited creates a visited set sized for the expected folder count.
func NewVisited(estimatedFolders int) *Visited {
	if estimatedFolders < 256 {
		estimatedFolders = 256
	}
	return &Visited{
		filter: bloom.NewWithEstimates(uint(estimatedFolders), 0.001),
		exact:  make(map[string]struct{}),
	}
}

// Visit marks a folder URL as visited and reports whether this was the
// first visit. Trailing slashes are ignored so "a/b" and "a/b/" count as
// the same folder.
func (v *Visited) Visit(folderURL string) bool {
	key := normalize(folderURL)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.filter.TestString(key) {
		if _, seen := v.exact[key]; seen {
			return false
		}
	}
	v.filter.AddString(key)
	v.exact[key] = struct{}{}
	return true
}

// Seen reports whether a folder URL was already visited.
func (v *Visited) Seen(folderURL string) bool {
	key := normalize(folderURL)

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.filter.TestString(key) {
		return false
	}
	_, seen := v.exact[key]
	return seen
}

// Count returns the number of distinct folders visited.
func (v *Visited) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.exact)
}

// Reset clears the set for a fresh crawl.
func (v *Visited) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter.ClearAll()
	v.exact = make(map[string]struct{})
}

func normalize(folderURL string) string {
	return strings.TrimRight(folderURL, "/")
}
