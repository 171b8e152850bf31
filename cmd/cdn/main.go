package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/abduss/otagate/internal/bootstrap"
	"github.com/abduss/otagate/internal/config"
	"github.com/abduss/otagate/internal/gate"
	"github.com/abduss/otagate/internal/logger"
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

	files, err := deps.FileStore(ctx)
	if err != nil {
		lg.Fatal("bundle store", zap.Error(err))
	}

	revocations, err := deps.Revocations(ctx)
	if err != nil {
		lg.Fatal("grant revocations", zap.Error(err))
	}

	verifier := gate.NewVerifier(codec, revocations, cfg.Grant.ClockSkew)
	router := server.NewCDNRouter(server.CDNDependencies{
		Config: cfg,
		Checks: deps.Checks(),
		Gate:   gate.NewHandler(verifier, files),
	})

	if err := server.Serve(ctx, "otagate cdn", cfg.CDN, router, bootstrap.ShutdownTimeout); err != nil {
		lg.Error("cdn server", zap.Error(err))
	}
}
