package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the gatekeeper API and the storage server.
type Config struct {
	Server    ServerConfig
	CDN       ServerConfig
	Postgres  PostgresConfig
	MinIO     MinIOConfig
	S3        S3Config
	Redis     RedisConfig
	Grant     GrantConfig
	Auth      AuthConfig
	Metadata  MetadataConfig
	Files     FileStoreConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
}

// ServerConfig parameterizes an HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	PublicURL    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// TrustedProxies lists the addresses or CIDRs whose forwarding headers are
	// believed when resolving the client IP. Empty trusts none.
	TrustedProxies []string
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// MinIOConfig carries MinIO connection and bucket information.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
}

// S3Config carries settings for an S3-compatible bundle bucket.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// RedisConfig describes the Redis instance backing the grant deny-list.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// GrantConfig groups download grant settings.
//
// SigningKeys has the form "gen:base64key[,gen:base64key...]"; the first
// entry is the generation new grants are signed with.
type GrantConfig struct {
	SigningKeys string
	TTL         time.Duration
	ClockSkew   time.Duration
	Revocation  string
}

// AuthConfig groups caller authentication settings.
type AuthConfig struct {
	Mode           string
	TokenSecret    string
	TokenAudience  string
	CallerTokenTTL time.Duration
	ClientStore    string
	APIKeys        string
	KeyCacheTTL    time.Duration
	BcryptCost     int
}

// MetadataConfig selects the update metadata backend.
type MetadataConfig struct {
	Backend string
	Dir     string
}

// FileStoreConfig selects the bundle storage backend.
type FileStoreConfig struct {
	Backend         string
	Root            string
	DigestAlgorithm string
	DigestCacheTTL  time.Duration
}

// RateLimitConfig bounds update checks per client address.
type RateLimitConfig struct {
	RequestsPerSec float64
	Burst          int
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

const (
	AuthModeToken = "token"
	AuthModeNone  = "none"

	BackendPostgres = "postgres"
	BackendFile     = "file"
	BackendStatic   = "static"
	BackendFS       = "fs"
	BackendMinIO    = "minio"
	BackendS3       = "s3"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendNone     = "none"
)

// ErrInvalidConfig wraps every validation failure returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads configuration values from environment variables, applying
// defaults, and validates the result.
func Load() (Config, error) {
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv reads configuration without validating it. Tools that touch a
// single backend use it so unrelated settings need not be present.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Host:           getString("OTAGATE_API_HOST", "0.0.0.0"),
			Port:           getInt("OTAGATE_API_PORT", 8080),
			ReadTimeout:    getDuration("OTAGATE_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDuration("OTAGATE_API_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getDuration("OTAGATE_API_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getList("OTAGATE_API_TRUSTED_PROXIES"),
		},
		CDN: ServerConfig{
			Host:           getString("OTAGATE_CDN_HOST", "0.0.0.0"),
			Port:           getInt("OTAGATE_CDN_PORT", 8081),
			PublicURL:      strings.TrimRight(getString("OTAGATE_CDN_PUBLIC_URL", "http://localhost:8081"), "/"),
			ReadTimeout:    getDuration("OTAGATE_CDN_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDuration("OTAGATE_CDN_WRITE_TIMEOUT", 5*time.Minute),
			IdleTimeout:    getDuration("OTAGATE_CDN_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getList("OTAGATE_CDN_TRUSTED_PROXIES"),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "otagate"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "otagate"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		MinIO: MinIOConfig{
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "otagate"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			Bucket:          getString("MINIO_BUCKET", "bundles"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", ""),
		},
		S3: S3Config{
			Region:    getString("S3_REGION", "us-east-1"),
			Endpoint:  getString("S3_ENDPOINT", ""),
			AccessKey: getString("S3_ACCESS_KEY", ""),
			SecretKey: getString("S3_SECRET_KEY", ""),
			Bucket:    getString("S3_BUCKET", "bundles"),
		},
		Redis: RedisConfig{
			Addr:      getString("REDIS_ADDR", "localhost:6379"),
			Password:  getString("REDIS_PASSWORD", ""),
			DB:        getInt("REDIS_DB", 0),
			KeyPrefix: getString("REDIS_KEY_PREFIX", "otagate:revoked:"),
		},
		Grant: GrantConfig{
			SigningKeys: getString("OTAGATE_GRANT_SIGNING_KEYS", ""),
			TTL:         getDuration("OTAGATE_GRANT_TTL", 5*time.Minute),
			ClockSkew:   getDuration("OTAGATE_GRANT_CLOCK_SKEW", 0),
			Revocation:  strings.ToLower(getString("OTAGATE_GRANT_REVOCATION", BackendNone)),
		},
		Auth: loadAuthConfig(),
		Metadata: MetadataConfig{
			Backend: strings.ToLower(getString("OTAGATE_METADATA_BACKEND", BackendFile)),
			Dir:     getString("OTAGATE_METADATA_DIR", "./metadata"),
		},
		Files: FileStoreConfig{
			Backend:         strings.ToLower(getString("OTAGATE_FILES_BACKEND", BackendFS)),
			Root:            getString("OTAGATE_FILES_ROOT", "./bundles"),
			DigestAlgorithm: strings.ToLower(getString("OTAGATE_DIGEST_ALGORITHM", "sha256")),
			DigestCacheTTL:  getDuration("OTAGATE_DIGEST_CACHE_TTL", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSec: getFloat("OTAGATE_RATE_LIMIT_RPS", 10),
			Burst:          getInt("OTAGATE_RATE_LIMIT_BURST", 20),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("OTAGATE_METRICS_PATH", "/metrics"),
		},
	}
}

// Validate rejects configurations that cannot produce a working service.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Grant.SigningKeys) == "" {
		return fmt.Errorf("%w: OTAGATE_GRANT_SIGNING_KEYS is required", ErrInvalidConfig)
	}
	if c.Grant.TTL <= 0 {
		return fmt.Errorf("%w: grant ttl must be positive", ErrInvalidConfig)
	}
	if c.Grant.ClockSkew < 0 {
		return fmt.Errorf("%w: grant clock skew must not be negative", ErrInvalidConfig)
	}
	if err := oneOf("auth mode", c.Auth.Mode, AuthModeToken, AuthModeNone); err != nil {
		return err
	}
	if c.Auth.Mode == AuthModeToken {
		if err := oneOf("client store", c.Auth.ClientStore, BackendStatic, BackendPostgres); err != nil {
			return err
		}
	}
	if err := oneOf("metadata backend", c.Metadata.Backend, BackendFile, BackendPostgres); err != nil {
		return err
	}
	if err := oneOf("files backend", c.Files.Backend, BackendFS, BackendMinIO, BackendS3); err != nil {
		return err
	}
	if err := oneOf("digest algorithm", c.Files.DigestAlgorithm, "sha256", "blake3"); err != nil {
		return err
	}
	if err := oneOf("grant revocation", c.Grant.Revocation, BackendNone, BackendRedis, BackendMemory); err != nil {
		return err
	}
	for _, proxies := range [][]string{c.Server.TrustedProxies, c.CDN.TrustedProxies} {
		for _, p := range proxies {
			if _, err := netip.ParsePrefix(p); err == nil {
				continue
			}
			if _, err := netip.ParseAddr(p); err != nil {
				return fmt.Errorf("%w: trusted proxy %q is not an address or CIDR", ErrInvalidConfig, p)
			}
		}
	}
	return nil
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported %s %q (want one of %s)", ErrInvalidConfig, name, value, strings.Join(allowed, ", "))
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig() AuthConfig {
	cost := getInt("OTAGATE_AUTH_BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		Mode:           strings.ToLower(getString("OTAGATE_AUTH_MODE", AuthModeToken)),
		TokenSecret:    getString("OTAGATE_AUTH_TOKEN_SECRET", ""),
		TokenAudience:  getString("OTAGATE_AUTH_TOKEN_AUDIENCE", "otagate"),
		CallerTokenTTL: getDuration("OTAGATE_AUTH_CALLER_TOKEN_TTL", 24*time.Hour),
		ClientStore:    strings.ToLower(getString("OTAGATE_AUTH_CLIENT_STORE", BackendStatic)),
		APIKeys:        getString("OTAGATE_AUTH_API_KEYS", ""),
		KeyCacheTTL:    getDuration("OTAGATE_AUTH_KEY_CACHE_TTL", time.Minute),
		BcryptCost:     cost,
	}
}
