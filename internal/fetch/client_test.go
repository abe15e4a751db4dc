package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/metroboards/galleryscan/internal/errors"
)

func TestClient_GetListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><a href="a/">a</a></html>`))
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig())
	defer c.Close()

	result, err := c.GetListing(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetListing() error = %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", result.StatusCode)
	}
	if !strings.Contains(result.HTML, `href="a/"`) {
		t.Errorf("HTML missing expected link: %s", result.HTML)
	}
	if result.Duration <= 0 {
		t.Error("Duration should be positive")
	}
}

func TestClient_GetListing_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig())
	defer c.Close()

	_, err := c.GetListing(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("GetListing() should return error for 500")
	}
	if errors.GetErrorType(err) != errors.ServerError {
		t.Errorf("error type = %v, want ServerError", errors.GetErrorType(err))
	}
	if errors.GetStatusCode(err) != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", errors.GetStatusCode(err))
	}
}

func TestClient_GetListing_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewClient(DefaultConfig())
	defer c.Close()

	_, err := c.GetListing(context.Background(), srv.URL+"/missing/")
	if errors.GetErrorType(err) != errors.ClientError {
		t.Errorf("error type = %v, want ClientError", errors.GetErrorType(err))
	}
}

func TestClient_GetProbe_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.ProbeTimeout = 50 * time.Millisecond
	c := NewClient(cfg)
	defer c.Close()

	_, err := c.GetProbe(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("GetProbe() should time out")
	}
	errType := errors.GetErrorType(err)
	if errType != errors.Timeout && errType != errors.Cancelled {
		t.Errorf("error type = %v, want Timeout or Cancelled", errType)
	}
}

func TestClient_GetListing_RedirectLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop/", http.StatusFound)
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig())
	defer c.Close()

	_, err := c.GetListing(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("GetListing() should fail on an endless redirect chain")
	}
	if errors.GetErrorType(err) != errors.Network {
		t.Errorf("error type = %v, want Network", errors.GetErrorType(err))
	}
	if !errors.IsTransient(err) {
		t.Error("redirect limit error should be transient")
	}
}

func TestClient_GetListing_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig())
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetListing(ctx, srv.URL)
	if err == nil {
		t.Fatal("GetListing() should fail with cancelled context")
	}
}

func TestCountAnchors(t *testing.T) {
	page := `<html><body>
		<a href="one.jpg">one</a>
		<a href="two.png">two</a>
		<a href="two.png">two again</a>
		<a href="sub/">sub</a>
		<a href="../">parent</a>
	</body></html>`

	isImage := func(href string) bool {
		return strings.HasSuffix(href, ".jpg") || strings.HasSuffix(href, ".png")
	}

	if got := CountAnchors(page, isImage); got != 2 {
		t.Errorf("CountAnchors() = %d, want 2 (deduplicated)", got)
	}

	all := func(string) bool { return true }
	if got := CountAnchors(page, all); got != 4 {
		t.Errorf("CountAnchors() with pass-through = %d, want 4", got)
	}
}

func TestCountAnchors_EmptyDocument(t *testing.T) {
	if got := CountAnchors("", func(string) bool { return true }); got != 0 {
		t.Errorf("CountAnchors(empty) = %d, want 0", got)
	}
}
