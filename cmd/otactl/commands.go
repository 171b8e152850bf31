package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/abduss/otagate/internal/auth"
	"github.com/abduss/otagate/internal/bootstrap"
	"github.com/abduss/otagate/internal/config"
	"github.com/abduss/otagate/internal/grant"
	"github.com/abduss/otagate/internal/storage"
	"github.com/spf13/pflag"
)

func runHashKey(_ context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("hash-key", pflag.ContinueOnError)
	subject := fs.String("subject", "", "client subject the key belongs to")
	cost := fs.Int("cost", config.FromEnv().Auth.BcryptCost, "bcrypt cost")
	if ok, err := parseFlags(fs, args, out); !ok {
		return err
	}

	key, hash, err := auth.GenerateAPIKey(*subject, *cost)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "key:  %s\nhash: %s\nentry: %s:%s\n", key, hash, *subject, hash)
	return nil
}

func runAddClient(ctx context.Context, args []string, out io.Writer) error {
	cfg := config.FromEnv()
	fs := pflag.NewFlagSet("add-client", pflag.ContinueOnError)
	subject := fs.String("subject", "", "client subject")
	cost := fs.Int("cost", cfg.Auth.BcryptCost, "bcrypt cost")
	if ok, err := parseFlags(fs, args, out); !ok {
		return err
	}

	key, hash, err := auth.GenerateAPIKey(*subject, *cost)
	if err != nil {
		return err
	}

	deps := bootstrap.New(cfg, nil)
	defer deps.Close()
	pool, err := deps.Postgres(ctx)
	if err != nil {
		return err
	}

	client, err := auth.NewRepository(pool).UpsertClient(ctx, *subject, hash)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "client %s stored at %s\nkey: %s\n", client.Subject, client.UpdatedAt.Format(time.RFC3339), key)
	return nil
}

func runDisableClient(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("disable-client", pflag.ContinueOnError)
	subject := fs.String("subject", "", "client subject")
	if ok, err := parseFlags(fs, args, out); !ok {
		return err
	}

	deps := bootstrap.New(config.FromEnv(), nil)
	defer deps.Close()
	pool, err := deps.Postgres(ctx)
	if err != nil {
		return err
	}

	if err := auth.NewRepository(pool).DisableClient(ctx, *subject); err != nil {
		return err
	}
	fmt.Fprintf(out, "client %s disabled\n", *subject)
	return nil
}

func runCallerToken(_ context.Context, args []string, out io.Writer) error {
	cfg := config.FromEnv()
	fs := pflag.NewFlagSet("caller-token", pflag.ContinueOnError)
	subject := fs.String("subject", "", "caller subject")
	ttl := fs.Duration("ttl", cfg.Auth.CallerTokenTTL, "token lifetime")
	if ok, err := parseFlags(fs, args, out); !ok {
		return err
	}

	svc := auth.NewService(nil, cfg.Auth)
	defer svc.Close()

	token, expiresAt, err := svc.IssueCallerToken(*subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\nexpires %s\n", token, expiresAt.UTC().Format(time.RFC3339))
	return nil
}

func runMintGrant(_ context.Context, args []string, out io.Writer) error {
	cfg := config.FromEnv()
	fs := pflag.NewFlagSet("mint-grant", pflag.ContinueOnError)
	resourcePath := fs.String("path", "", "resource path the grant covers")
	subject := fs.String("subject", "", "subject recorded in the grant")
	hash := fs.String("hash", "", "content hash the storage server must verify")
	ttl := fs.Duration("ttl", cfg.Grant.TTL, "grant lifetime")
	if ok, err := parseFlags(fs, args, out); !ok {
		return err
	}

	codec, err := bootstrap.New(cfg, nil).Codec()
	if err != nil {
		return err
	}

	token, g, err := codec.Mint(grant.Grant{ResourcePath: *resourcePath, Subject: *subject, ContentHash: *hash}, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\nid %s expires %s\n", token, g.ID, g.ExpiresAt.Format(time.RFC3339))
	return nil
}

type inspection struct {
	ID            string    `json:"id"`
	ResourcePath  string    `json:"resourcePath"`
	Subject       string    `json:"subject,omitempty"`
	ContentHash   string    `json:"contentHash,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt"`
	KeyGeneration uint32    `json:"keyGeneration"`
	Expired       bool      `json:"expired"`
}

func runInspect(_ context.Context, args []string, out io.Writer) error {
	cfg := config.FromEnv()
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	if ok, err := parseFlags(fs, args, out); !ok {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("inspect takes exactly one token")
	}

	codec, err := bootstrap.New(cfg, nil).Codec()
	if err != nil {
		return err
	}
	g, err := codec.Decode(fs.Arg(0))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(inspection{
		ID:            g.ID,
		ResourcePath:  g.ResourcePath,
		Subject:       g.Subject,
		ContentHash:   g.ContentHash,
		ExpiresAt:     g.ExpiresAt,
		KeyGeneration: g.KeyGeneration,
		Expired:       g.ExpiredAt(codec.Now(), cfg.Grant.ClockSkew),
	})
}

func runRevoke(ctx context.Context, args []string, out io.Writer) error {
	cfg := config.FromEnv()
	fs := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
	if ok, err := parseFlags(fs, args, out); !ok {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("revoke takes exactly one token")
	}
	if cfg.Grant.Revocation != config.BackendRedis {
		return fmt.Errorf("revocation backend is %q; only a shared redis deny-list can be revoked from here", cfg.Grant.Revocation)
	}

	deps := bootstrap.New(cfg, nil)
	defer deps.Close()

	codec, err := deps.Codec()
	if err != nil {
		return err
	}
	g, err := codec.Decode(fs.Arg(0))
	if err != nil {
		return err
	}
	if g.ID == "" {
		return errors.New("grant carries no id and cannot be revoked")
	}
	if g.ExpiredAt(codec.Now(), cfg.Grant.ClockSkew) {
		fmt.Fprintf(out, "grant %s already expired\n", g.ID)
		return nil
	}

	list, err := deps.Revocations(ctx)
	if err != nil {
		return err
	}
	if err := list.Revoke(ctx, g.ID, g.ExpiresAt.Add(cfg.Grant.ClockSkew)); err != nil {
		return err
	}
	fmt.Fprintf(out, "grant %s revoked until %s\n", g.ID, g.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	if ok, err := parseFlags(fs, args, out); !ok {
		return err
	}

	deps := bootstrap.New(config.FromEnv(), nil)
	defer deps.Close()
	pool, err := deps.Postgres(ctx)
	if err != nil {
		return err
	}

	if err := storage.Migrate(ctx, pool); err != nil {
		return err
	}
	fmt.Fprintln(out, "migrations applied")
	return nil
}
