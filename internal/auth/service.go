package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/abduss/otagate/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyHeader carries "<subject>.<secret>".
	APIKeyHeader = "X-API-Key"

	apiKeySecretLength = 32
	maxSecretLength    = 72 // bcrypt limit
	tokenIssuer        = "otagate"
)

// ClientStore looks up registered API clients.
type ClientStore interface {
	FindClient(ctx context.Context, subject string) (Client, error)
}

// Authenticator resolves the caller behind a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Caller, error)
}

// Service authenticates callers by bearer token or API key.
type Service struct {
	store    ClientStore
	cfg      config.AuthConfig
	nowFunc  func() time.Time
	parser   *jwt.Parser
	verified *ttlcache.Cache[string, string]
}

// NewService creates a Service. store may be nil when only bearer tokens or
// anonymous mode are used.
func NewService(store ClientStore, cfg config.AuthConfig) *Service {
	s := &Service{
		store:   store,
		cfg:     cfg,
		nowFunc: time.Now,
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.nowFunc() }),
	}
	if cfg.TokenAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.TokenAudience))
	}
	s.parser = jwt.NewParser(opts...)

	if cfg.KeyCacheTTL > 0 {
		s.verified = ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](cfg.KeyCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		)
		go s.verified.Start()
	}

	return s
}

// Close stops the verified-key cache janitor.
func (s *Service) Close() {
	if s.verified != nil {
		s.verified.Stop()
	}
}

// Authenticate implements Authenticator. A bearer token takes precedence
// over an API key when both are sent.
func (s *Service) Authenticate(ctx context.Context, r *http.Request) (Caller, error) {
	if s.cfg.Mode == config.AuthModeNone {
		return Caller{Subject: AnonymousSubject, Authenticated: true, Method: MethodAnonymous}, nil
	}

	if header := r.Header.Get("Authorization"); header != "" {
		token := extractBearerToken(header)
		if token == "" {
			return Caller{}, ErrUnauthorized
		}
		subject, err := s.ValidateCallerToken(token)
		if err != nil {
			return Caller{}, err
		}
		return Caller{Subject: subject, Authenticated: true, Method: MethodToken}, nil
	}

	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		subject, err := s.VerifyAPIKey(ctx, key)
		if err != nil {
			return Caller{}, err
		}
		return Caller{Subject: subject, Authenticated: true, Method: MethodAPIKey}, nil
	}

	return Caller{}, ErrUnauthorized
}

// VerifyAPIKey checks "<subject>.<secret>" against the client store and
// returns the subject. The client record is read on every call so a disabled
// client is refused at once; only the bcrypt comparison is memoised, keyed by
// the presented key and valid for the hash it was checked against.
func (s *Service) VerifyAPIKey(ctx context.Context, key string) (string, error) {
	if s.store == nil {
		return "", ErrUnauthorized
	}

	idx := strings.LastIndexByte(key, '.')
	if idx <= 0 || idx == len(key)-1 {
		return "", ErrUnauthorized
	}
	subject, secret := key[:idx], key[idx+1:]
	if len(secret) > maxSecretLength {
		return "", ErrUnauthorized
	}

	client, err := s.store.FindClient(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("find client: %w", err)
	}
	if client.Disabled {
		zap.L().Warn("disabled api client presented key", zap.String("subject", subject))
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, ErrClientDisabled)
	}

	fingerprint := fingerprintKey(key)
	if s.verified != nil {
		if item := s.verified.Get(fingerprint); item != nil && item.Value() == client.KeyHash {
			return subject, nil
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(client.KeyHash), []byte(secret)); err != nil {
		return "", ErrUnauthorized
	}

	if s.verified != nil {
		s.verified.Set(fingerprint, client.KeyHash, ttlcache.DefaultTTL)
	}
	return subject, nil
}

// ValidateCallerToken verifies a caller JWT and returns its subject.
func (s *Service) ValidateCallerToken(tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" || s.cfg.TokenSecret == "" {
		return "", ErrUnauthorized
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := s.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.TokenSecret), nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrUnauthorized
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrUnauthorized
	}

	return claims.Subject, nil
}

// IssueCallerToken mints a caller JWT for subject valid for ttl, falling
// back to the configured caller token TTL when ttl is zero.
func (s *Service) IssueCallerToken(subject string, ttl time.Duration) (string, time.Time, error) {
	if s.cfg.TokenSecret == "" {
		return "", time.Time{}, ErrTokensDisabled
	}
	if err := validateSubject(subject); err != nil {
		return "", time.Time{}, err
	}
	if ttl <= 0 {
		ttl = s.cfg.CallerTokenTTL
	}

	now := s.nowFunc()
	expiresAt := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if s.cfg.TokenAudience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.TokenAudience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.TokenSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign caller token: %w", err)
	}
	return signed, expiresAt, nil
}

// GenerateAPIKey creates a new key for subject and its bcrypt hash. Only the
// hash should be stored.
func GenerateAPIKey(subject string, cost int) (key, hash string, err error) {
	if err := validateSubject(subject); err != nil {
		return "", "", err
	}

	raw := make([]byte, apiKeySecretLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	hash, err = HashSecret(secret, cost)
	if err != nil {
		return "", "", err
	}
	return subject + "." + secret, hash, nil
}

// HashSecret bcrypt-hashes an API key secret.
func HashSecret(secret string, cost int) (string, error) {
	if len(secret) > maxSecretLength {
		return "", fmt.Errorf("secret exceeds maximum length of %d characters", maxSecretLength)
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func fingerprintKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func validateSubject(subject string) error {
	if strings.TrimSpace(subject) == "" || strings.ContainsAny(subject, ":,") || len(subject) > 128 {
		return ErrInvalidSubject
	}
	return nil
}

func extractBearerToken(header string) string {
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
