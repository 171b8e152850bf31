package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("OTAGATE_GRANT_SIGNING_KEYS", "1:c2VjcmV0LXNlY3JldC1zZWNyZXQtc2VjcmV0LXNlY3JldA==")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Grant.TTL != 5*time.Minute {
		t.Fatalf("expected default grant ttl 5m, got %s", cfg.Grant.TTL)
	}
	if cfg.Server.Address() != "0.0.0.0:8080" {
		t.Fatalf("unexpected api address %s", cfg.Server.Address())
	}
	if cfg.CDN.PublicURL != "http://localhost:8081" {
		t.Fatalf("unexpected cdn public url %s", cfg.CDN.PublicURL)
	}
	if cfg.Files.DigestAlgorithm != "sha256" {
		t.Fatalf("unexpected digest algorithm %s", cfg.Files.DigestAlgorithm)
	}
	if len(cfg.Server.TrustedProxies) != 0 || len(cfg.CDN.TrustedProxies) != 0 {
		t.Fatalf("expected no trusted proxies by default, got %v and %v", cfg.Server.TrustedProxies, cfg.CDN.TrustedProxies)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("OTAGATE_GRANT_SIGNING_KEYS", "1:abc")
	t.Setenv("OTAGATE_GRANT_TTL", "90s")
	t.Setenv("OTAGATE_CDN_PUBLIC_URL", "https://cdn.example.com/")
	t.Setenv("OTAGATE_METADATA_BACKEND", "POSTGRES")
	t.Setenv("OTAGATE_RATE_LIMIT_RPS", "2.5")
	t.Setenv("OTAGATE_AUTH_BCRYPT_COST", "99")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Grant.TTL != 90*time.Second {
		t.Fatalf("expected ttl 90s, got %s", cfg.Grant.TTL)
	}
	if cfg.CDN.PublicURL != "https://cdn.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.CDN.PublicURL)
	}
	if cfg.Metadata.Backend != BackendPostgres {
		t.Fatalf("expected postgres backend, got %s", cfg.Metadata.Backend)
	}
	if cfg.RateLimit.RequestsPerSec != 2.5 {
		t.Fatalf("expected 2.5 rps, got %v", cfg.RateLimit.RequestsPerSec)
	}
	if cfg.Auth.BcryptCost != 12 {
		t.Fatalf("expected out-of-range cost to fall back to 12, got %d", cfg.Auth.BcryptCost)
	}
}

func TestLoadRequiresSigningKeys(t *testing.T) {
	t.Setenv("OTAGATE_GRANT_SIGNING_KEYS", "")

	if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("OTAGATE_GRANT_SIGNING_KEYS", "1:abc")
	t.Setenv("OTAGATE_FILES_BACKEND", "ftp")

	if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("OTAGATE_GRANT_SIGNING_KEYS", "1:abc")
	t.Setenv("OTAGATE_API_TRUSTED_PROXIES", " 10.0.0.0/8, ,192.0.2.1 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := cfg.Server.TrustedProxies; len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "192.0.2.1" {
		t.Fatalf("unexpected trusted proxies %v", got)
	}

	t.Setenv("OTAGATE_CDN_TRUSTED_PROXIES", "load-balancer")
	if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for a hostname proxy, got %v", err)
	}
}
