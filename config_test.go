package policygate

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yml")
	content := `
listen: ":9090"
origin: "http://upstream:8000"
store:
  driver: sqlite
  path: /tmp/gate.db
cors:
  allowedOrigins: ["https://a.com"]
  allowedMethods: ["GET", "DELETE"]
  allowCredentials: true
  maxAgeSeconds: 600
offers: ["application/json", "text/html"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("unexpected listen %q", cfg.Listen)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "/tmp/gate.db" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if len(cfg.OfferVariants()) != 2 {
		t.Errorf("unexpected offers %v", cfg.Offers)
	}

	p := cfg.CORSPolicy()
	if p.MaxAge() != 10*time.Minute {
		t.Errorf("unexpected max-age %v", p.MaxAge())
	}
	if !p.AllowCredentials() {
		t.Error("expected credentials to be allowed")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("unexpected default listen %q", cfg.Listen)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("unexpected default driver %q", cfg.Store.Driver)
	}
}
