package gallery

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxDepth != 5 {
		t.Errorf("MaxDepth = %d, want 5", cfg.MaxDepth)
	}
	if cfg.ListingTimeout != 15*time.Second {
		t.Errorf("ListingTimeout = %v, want 15s", cfg.ListingTimeout)
	}
	if cfg.ProbeTimeout != 10*time.Second {
		t.Errorf("ProbeTimeout = %v, want 10s", cfg.ProbeTimeout)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache.TTL = %v, want 5m", cfg.Cache.TTL)
	}
	if cfg.Cache.CallTimeout != 500*time.Millisecond {
		t.Errorf("Cache.CallTimeout = %v, want 500ms", cfg.Cache.CallTimeout)
	}
	if cfg.Token.TTL != 2*time.Hour {
		t.Errorf("Token.TTL = %v, want 2h", cfg.Token.TTL)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing root", func(c *Config) { c.RootURL = "" }, true},
		{"no host", func(c *Config) { c.RootURL = "https://" }, true},
		{"zero depth", func(c *Config) { c.MaxDepth = 0 }, true},
		{"negative concurrency", func(c *Config) { c.ProbeConcurrency = -1 }, true},
		{"negative rate", func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }, true},
		{"bad manifest backend", func(c *Config) { c.Manifest.Backend = "etcd" }, true},
		{"memory backend", func(c *Config) { c.Manifest.Backend = "memory" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RootURL = "https://media.example/__metro/gallery/"
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_FillDerived(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RootURL = "https://media.example/__metro/gallery/"
	cfg.fillDerived()

	if cfg.AllowedHost != "media.example" {
		t.Errorf("AllowedHost = %q", cfg.AllowedHost)
	}
	if cfg.PathPrefix != "/__metro/gallery/" {
		t.Errorf("PathPrefix = %q", cfg.PathPrefix)
	}

	// Explicit values are kept.
	cfg2 := DefaultConfig()
	cfg2.RootURL = "https://media.example/__metro/gallery/"
	cfg2.AllowedHost = "other.example"
	cfg2.PathPrefix = "/__metro/"
	cfg2.fillDerived()
	if cfg2.AllowedHost != "other.example" || cfg2.PathPrefix != "/__metro/" {
		t.Errorf("explicit values overridden: %q %q", cfg2.AllowedHost, cfg2.PathPrefix)
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
root_url: https://media.example/__metro/gallery/
max_depth: 3
cache:
  addr: localhost:6379
token:
  endpoint: https://media.example/proxy
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.RootURL != "https://media.example/__metro/gallery/" {
		t.Errorf("RootURL = %q", cfg.RootURL)
	}
	if cfg.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want 3", cfg.MaxDepth)
	}
	if cfg.Cache.Addr != "localhost:6379" {
		t.Errorf("Cache.Addr = %q", cfg.Cache.Addr)
	}
	// Unset fields keep their defaults.
	if cfg.ListingTimeout != 15*time.Second {
		t.Errorf("ListingTimeout = %v, want default", cfg.ListingTimeout)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"root_url": "https://media.example/g/", "max_depth": 2}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.RootURL != "https://media.example/g/" || cfg.MaxDepth != 2 {
		t.Errorf("cfg = %q depth %d", cfg.RootURL, cfg.MaxDepth)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFromFile() of missing file returned nil error")
	}
}

func TestConfig_FromEnv(t *testing.T) {
	t.Setenv("GALLERY_ROOT_URL", "https://media.example/env/")
	t.Setenv("GALLERY_SECRET", "env-secret")
	t.Setenv("GALLERY_MAX_DEPTH", "4")
	t.Setenv("GALLERY_REDIS_ADDR", "redis:6379")
	t.Setenv("GALLERY_TOKEN_TTL", "45m")
	t.Setenv("GALLERY_GROUP_ID", "team-a")

	cfg := DefaultConfig()
	cfg.FromEnv()

	if cfg.RootURL != "https://media.example/env/" {
		t.Errorf("RootURL = %q", cfg.RootURL)
	}
	if cfg.Token.Secret != "env-secret" {
		t.Errorf("Secret = %q", cfg.Token.Secret)
	}
	if cfg.MaxDepth != 4 {
		t.Errorf("MaxDepth = %d", cfg.MaxDepth)
	}
	if cfg.Cache.Addr != "redis:6379" {
		t.Errorf("Cache.Addr = %q", cfg.Cache.Addr)
	}
	if cfg.Token.TTL != 45*time.Minute {
		t.Errorf("Token.TTL = %v", cfg.Token.TTL)
	}
	if cfg.GroupID != "team-a" {
		t.Errorf("GroupID = %q", cfg.GroupID)
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RootURL = "https://media.example/g/"
	cfg.Token.Secret = "s3cret"

	clone := cfg.Clone()
	clone.RootURL = "https://other.example/"
	clone.Cache.TTL = time.Minute

	if cfg.RootURL != "https://media.example/g/" {
		t.Error("Clone() shares RootURL with the original")
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Error("Clone() shares Cache with the original")
	}
	if clone.Token.Secret != "s3cret" {
		t.Error("Clone() lost the secret")
	}
}
