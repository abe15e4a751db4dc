package dedup

import (
	"fmt"
	"sync"
	"testing"
)

func TestVisited_FirstVisitWins(t *testing.T) {
	v := NewVisited(0)

	if !v.Visit("https://host.example/gallery/A/") {
		t.Error("first Visit() = false, want true")
	}
	if v.Visit("https://host.example/gallery/A/") {
		t.Error("second Visit() = true, want false")
	}
	if v.Count() != 1 {
		t.Errorf("Count() = %d, want 1", v.Count())
	}
}

func TestVisited_TrailingSlashNormalized(t *testing.T) {
	v := NewVisited(0)

	v.Visit("https://host.example/gallery/A")
	if v.Visit("https://host.example/gallery/A/") {
		t.Error("Visit() treated trailing-slash variant as a new folder")
	}
	if !v.Seen("https://host.example/gallery/A") {
		t.Error("Seen() = false for visited folder")
	}
}

func TestVisited_Seen(t *testing.T) {
	v := NewVisited(0)

	if v.Seen("https://host.example/gallery/A/") {
		t.Error("Seen() = true before any visit")
	}
	v.Visit("https://host.example/gallery/A/")
	if !v.Seen("https://host.example/gallery/A/") {
		t.Error("Seen() = false after visit")
	}
	if v.Seen("https://host.example/gallery/B/") {
		t.Error("Seen() = true for unvisited folder")
	}
}

func TestVisited_Reset(t *testing.T) {
	v := NewVisited(0)

	v.Visit("https://host.example/gallery/A/")
	v.Reset()

	if v.Count() != 0 {
		t.Errorf("Count() after Reset = %d, want 0", v.Count())
	}
	if !v.Visit("https://host.example/gallery/A/") {
		t.Error("Visit() after Reset = false, want true")
	}
}

func TestVisited_ConcurrentVisits(t *testing.T) {
	v := NewVisited(1000)

	var wg sync.WaitGroup
	firsts := make([]int, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				if v.Visit(fmt.Sprintf("https://host.example/gallery/%d/", n)) {
					firsts[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, n := range firsts {
		total += n
	}
	if total != 100 {
		t.Errorf("total first visits = %d, want 100", total)
	}
	if v.Count() != 100 {
		t.Errorf("Count() = %d, want 100", v.Count())
	}
}
