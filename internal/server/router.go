package server

import (
	"github.com/abduss/otagate/internal/auth"
	"github.com/abduss/otagate/internal/config"
	"github.com/abduss/otagate/internal/gate"
	"github.com/abduss/otagate/internal/issuer"
	"github.com/abduss/otagate/internal/logger"
	"github.com/abduss/otagate/internal/metrics"
	"github.com/abduss/otagate/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIDependencies groups what the gatekeeper router serves.
type APIDependencies struct {
	Config      config.Config
	Checks      []HealthCheck
	AuthService *auth.Service
	Issuer      *issuer.Service
	Limiter     *ratelimit.Limiter
}

// CDNDependencies groups what the storage server router serves.
type CDNDependencies struct {
	Config config.Config
	Checks []HealthCheck
	Gate   *gate.Handler
}

// NewAPIRouter builds the gatekeeper engine: update checks and the API key
// token exchange.
func NewAPIRouter(deps APIDependencies) *gin.Engine {
	router := newEngine(deps.Config, deps.Config.Server, deps.Checks)

	if deps.AuthService != nil {
		auth.RegisterRoutes(router, deps.AuthService)

		if deps.Issuer != nil {
			issuer.RegisterRoutes(router, deps.Issuer,
				deps.Limiter.Middleware(),
				auth.AuthMiddleware(deps.AuthService),
			)
		}
	}

	return router
}

// NewCDNRouter builds the storage server engine. Grants are its only
// authentication.
func NewCDNRouter(deps CDNDependencies) *gin.Engine {
	router := newEngine(deps.Config, deps.Config.CDN, deps.Checks)

	if deps.Gate != nil {
		gate.RegisterRoutes(router, deps.Gate)
	}

	return router
}

func newEngine(cfg config.Config, srv config.ServerConfig, checks []HealthCheck) *gin.Engine {
	router := gin.New()
	// gin trusts every proxy unless told otherwise; an empty list trusts none.
	if err := router.SetTrustedProxies(srv.TrustedProxies); err != nil {
		zap.L().Error("invalid trusted proxies, trusting none", zap.Strings("proxies", srv.TrustedProxies), zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, checks)
	if cfg.Metrics.PrometheusPath != "" {
		metrics.Register(router, cfg.Metrics.PrometheusPath)
	}

	return router
}
