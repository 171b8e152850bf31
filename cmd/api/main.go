package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/abduss/otagate/internal/bootstrap"
	"github.com/abduss/otagate/internal/config"
	"github.com/abduss/otagate/internal/issuer"
	"github.com/abduss/otagate/internal/logger"
	"github.com/abduss/otagate/internal/ratelimit"
	"github.com/abduss/otagate/internal/server"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	lg, err := logger.Init()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		lg.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := bootstrap.New(cfg, lg)
	defer deps.Close()

	codec, err := deps.Codec()
	if err != nil {
		lg.Fatal("grant codec", zap.Error(err))
	}

	metadataStore, err := deps.MetadataStore(ctx)
	if err != nil {
		lg.Fatal("metadata store", zap.Error(err))
	}

	files, err := deps.FileStore(ctx)
	if err != nil {
		lg.Fatal("bundle store", zap.Error(err))
	}

	authService, err := deps.AuthService(ctx)
	if err != nil {
		lg.Fatal("auth service", zap.Error(err))
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSec, cfg.RateLimit.Burst)
	defer limiter.Close()

	router := server.NewAPIRouter(server.APIDependencies{
		Config:      cfg,
		Checks:      deps.Checks(),
		AuthService: authService,
		Issuer:      issuer.NewService(metadataStore, files, codec, cfg.Grant.TTL, cfg.CDN.PublicURL),
		Limiter:     limiter,
	})

	if err := server.Serve(ctx, "otagate api", cfg.Server, router, bootstrap.ShutdownTimeout); err != nil {
		lg.Error("api server", zap.Error(err))
	}
}
