// Package bootstrap turns configuration into the stores and services both
// servers and otactl run on. Shared connections are opened once and closed
// by Close.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/abduss/otagate/internal/auth"
	"github.com/abduss/otagate/internal/config"
	"github.com/abduss/otagate/internal/filestore"
	"github.com/abduss/otagate/internal/gate"
	"github.com/abduss/otagate/internal/grant"
	"github.com/abduss/otagate/internal/metadata"
	"github.com/abduss/otagate/internal/server"
	"github.com/abduss/otagate/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ShutdownTimeout bounds graceful shutdown of either server.
const ShutdownTimeout = 10 * time.Second

// Deps lazily opens backing connections on first use.
type Deps struct {
	cfg     config.Config
	log     *zap.Logger
	pool    *pgxpool.Pool
	redis   *redis.Client
	checks  []server.HealthCheck
	closers []func()
}

// New returns an empty Deps for cfg.
func New(cfg config.Config, log *zap.Logger) *Deps {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deps{cfg: cfg, log: log}
}

// Checks lists health checks for every connection opened so far.
func (d *Deps) Checks() []server.HealthCheck {
	return append([]server.HealthCheck(nil), d.checks...)
}

// Close releases everything opened, newest first.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func (d *Deps) onClose(fn func()) {
	d.closers = append(d.closers, fn)
}

// Postgres returns the shared pool, connecting on first call.
func (d *Deps) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if d.pool != nil {
		return d.pool, nil
	}
	pool, err := storage.NewPostgresPool(ctx, d.cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	d.pool = pool
	d.onClose(pool.Close)
	d.checks = append(d.checks, server.HealthCheck{Name: "postgres", Ping: pool.Ping})
	d.log.Info("postgres connected", zap.String("host", d.cfg.Postgres.Host))
	return pool, nil
}

// Redis returns the shared client, connecting on first call.
func (d *Deps) Redis(ctx context.Context) (*redis.Client, error) {
	if d.redis != nil {
		return d.redis, nil
	}
	client, err := storage.NewRedisClient(ctx, d.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	d.redis = client
	d.onClose(func() { _ = client.Close() })
	d.checks = append(d.checks, server.HealthCheck{
		Name: "redis",
		Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
	})
	d.log.Info("redis connected", zap.String("addr", d.cfg.Redis.Addr))
	return client, nil
}

// Codec builds the grant codec from the configured keyring.
func (d *Deps) Codec() (*grant.Codec, error) {
	keys, err := grant.ParseKeyring(d.cfg.Grant.SigningKeys)
	if err != nil {
		return nil, fmt.Errorf("signing keys: %w", err)
	}
	d.log.Info("grant keyring loaded",
		zap.Uint32("current_generation", keys.Current()),
		zap.Int("generations", len(keys.Generations())))
	return grant.NewCodec(keys), nil
}

// FileStore opens the configured bundle store, with digest caching when a
// cache TTL is set.
func (d *Deps) FileStore(ctx context.Context) (filestore.Store, error) {
	alg, err := filestore.ParseAlgorithm(d.cfg.Files.DigestAlgorithm)
	if err != nil {
		return nil, err
	}

	var store filestore.Store
	switch d.cfg.Files.Backend {
	case config.BackendFS:
		local, err := filestore.NewLocalStore(d.cfg.Files.Root, alg)
		if err != nil {
			return nil, fmt.Errorf("open bundle root: %w", err)
		}
		store = local
	case config.BackendMinIO:
		client, err := storage.NewMinIOClient(d.cfg.MinIO)
		if err != nil {
			return nil, err
		}
		if err := storage.CheckBucket(ctx, client, d.cfg.MinIO.Bucket); err != nil {
			return nil, err
		}
		d.checks = append(d.checks, server.HealthCheck{
			Name: "minio",
			Ping: func(ctx context.Context) error { return storage.CheckBucket(ctx, client, d.cfg.MinIO.Bucket) },
		})
		store = filestore.NewMinIOStore(filestore.NewMinIOClient(client), d.cfg.MinIO.Bucket, alg)
	case config.BackendS3:
		client, err := storage.NewS3Client(ctx, d.cfg.S3)
		if err != nil {
			return nil, err
		}
		store = filestore.NewS3Store(client, d.cfg.S3.Bucket, alg)
	default:
		return nil, fmt.Errorf("%w: files backend %q", config.ErrInvalidConfig, d.cfg.Files.Backend)
	}

	d.log.Info("bundle store ready",
		zap.String("backend", d.cfg.Files.Backend), zap.String("digest", string(alg)))

	if d.cfg.Files.DigestCacheTTL <= 0 {
		return store, nil
	}
	cached := filestore.NewCachedDigests(store, d.cfg.Files.DigestCacheTTL)
	d.onClose(cached.Close)
	return cached, nil
}

// MetadataStore opens the configured update metadata backend.
func (d *Deps) MetadataStore(ctx context.Context) (metadata.Store, error) {
	switch d.cfg.Metadata.Backend {
	case config.BackendFile:
		store, err := metadata.NewFileStore(d.cfg.Metadata.Dir)
		if err != nil {
			return nil, fmt.Errorf("open metadata dir: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		pool, err := d.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		return metadata.NewRepository(pool), nil
	default:
		return nil, fmt.Errorf("%w: metadata backend %q", config.ErrInvalidConfig, d.cfg.Metadata.Backend)
	}
}

// Revocations opens the grant deny-list. It returns nil when revocation is
// disabled.
func (d *Deps) Revocations(ctx context.Context) (gate.RevocationList, error) {
	switch d.cfg.Grant.Revocation {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		list := gate.NewMemoryRevocations()
		d.onClose(list.Close)
		return list, nil
	case config.BackendRedis:
		client, err := d.Redis(ctx)
		if err != nil {
			return nil, err
		}
		return gate.NewRedisRevocations(client, d.cfg.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("%w: grant revocation %q", config.ErrInvalidConfig, d.cfg.Grant.Revocation)
	}
}

// ClientStore opens the API key store. It returns nil in anonymous mode.
func (d *Deps) ClientStore(ctx context.Context) (auth.ClientStore, error) {
	if d.cfg.Auth.Mode == config.AuthModeNone {
		return nil, nil
	}
	switch d.cfg.Auth.ClientStore {
	case config.BackendStatic:
		clients, err := auth.ParseStaticClients(d.cfg.Auth.APIKeys)
		if err != nil {
			return nil, fmt.Errorf("api keys: %w", err)
		}
		d.log.Info("static api clients loaded", zap.Int("clients", clients.Len()))
		return clients, nil
	case config.BackendPostgres:
		pool, err := d.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		return auth.NewRepository(pool), nil
	default:
		return nil, fmt.Errorf("%w: client store %q", config.ErrInvalidConfig, d.cfg.Auth.ClientStore)
	}
}

// AuthService builds the caller authenticator over the configured client
// store.
func (d *Deps) AuthService(ctx context.Context) (*auth.Service, error) {
	store, err := d.ClientStore(ctx)
	if err != nil {
		return nil, err
	}
	svc := auth.NewService(store, d.cfg.Auth)
	d.onClose(svc.Close)
	return svc, nil
}
