package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/folio/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != "disabled" {
		t.Errorf("mode = %q, want disabled", cfg.Mode)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_SessionModeNeedsSecret(t *testing.T) {
	cfg := AuthConfig{Mode: "session", JWTSecret: "short"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("short secret err = %v", err)
	}
	cfg.JWTSecret = strings.Repeat("s", minSecretLength)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("session mode with secret should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("session mode should be enabled")
	}
}

func TestAuthConfig_AdminSeed(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Admin: AdminConfig{Email: "not-an-email", Name: "A", Password: "secret1"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid admin email should fail")
	}
	cfg.Admin.Email = "admin@example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid admin seed: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestFullConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cfg.Uploads.MaxBytes = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero upload limit should fail")
	}
}

func TestLoad_YAMLWithEnv(t *testing.T) {
	t.Setenv("FOLIO_TEST_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  http:
    port: 9090
library:
  root: /srv/books
auth:
  mode: token
  token: ${FOLIO_TEST_TOKEN}
  session_ttl: 2h
events:
  catalog_throttle: 500ms
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Token != "from-env" {
		t.Errorf("token = %q", cfg.Auth.Token)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.HTTP.Address() != ":9090" {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
	if cfg.Library.Root != "/srv/books" || cfg.Library.CatalogPath != "./data/metadata.json" {
		t.Errorf("library = %+v", cfg.Library)
	}
	if cfg.Auth.SessionTTL != 2*time.Hour || cfg.Events.CatalogThrottle != 500*time.Millisecond {
		t.Errorf("durations = %v, %v", cfg.Auth.SessionTTL, cfg.Events.CatalogThrottle)
	}
	if cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
}

func TestReindex(t *testing.T) {
	root := t.TempDir()
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Number_Theory"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "Number_Theory", "Primes - Euclid [classic].pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	cfg.Library.Root = root
	cfg.Library.CatalogPath = filepath.Join(dataDir, "metadata.json")
	cfg.SQLite.Path = filepath.Join(dataDir, "folio.db")

	c, err := Reindex(context.Background(), WithConfig(cfg), WithLogOutput(&strings.Builder{}))
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if c.TotalBooks != 1 || c.Books[0].ID != "number_theory_1" {
		t.Fatalf("catalog = %+v", c)
	}
	if _, err := os.Stat(cfg.Library.CatalogPath); err != nil {
		t.Errorf("catalog not exported: %v", err)
	}

	// A second run keeps the id.
	c, err = Reindex(context.Background(), WithConfig(cfg), WithLogOutput(&strings.Builder{}))
	if err != nil {
		t.Fatalf("second Reindex: %v", err)
	}
	if c.Books[0].ID != "number_theory_1" {
		t.Errorf("id changed: %s", c.Books[0].ID)
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
}
