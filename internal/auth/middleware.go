package auth

import (
	"errors"
	"net/http"

	"github.com/abduss/otagate/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type contextKey string

const callerContextKey contextKey = "otagateCaller"

// AuthMiddleware authenticates the request and injects the Caller. Requests
// without a valid credential are rejected with 401.
func AuthMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := authenticator.Authenticate(c.Request.Context(), c.Request)
		if err != nil {
			if !errors.Is(err, ErrUnauthorized) {
				logger.FromContext(c).Error("authenticate caller", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(string(callerContextKey), caller)
		c.Next()
	}
}

// CurrentCaller extracts the authenticated caller from the context.
func CurrentCaller(c *gin.Context) (Caller, bool) {
	value, exists := c.Get(string(callerContextKey))
	if !exists {
		return Caller{}, false
	}
	caller, ok := value.(Caller)
	return caller, ok
}

// RegisterRoutes mounts the token exchange endpoint: a caller holding an API
// key trades it for a short-lived bearer token.
func RegisterRoutes(router gin.IRouter, service *Service) {
	router.POST("/auth/token", func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		subject, err := service.VerifyAPIKey(c.Request.Context(), key)
		if err != nil {
			if !errors.Is(err, ErrUnauthorized) {
				logger.FromContext(c).Error("verify api key", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		token, expiresAt, err := service.IssueCallerToken(subject, 0)
		if err != nil {
			if errors.Is(err, ErrTokensDisabled) {
				c.JSON(http.StatusNotFound, gin.H{"error": "token exchange disabled"})
				return
			}
			logger.FromContext(c).Error("issue caller token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":            token,
			"access_token_expires_at": expiresAt.Unix(),
		})
	})
}
