package issuer

import (
	"errors"
	"net/http"

	"github.com/abduss/otagate/internal/auth"
	"github.com/abduss/otagate/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// HeaderPlatform names the target platform; ?platform= is the fallback.
	HeaderPlatform = "X-Platform"
	// HeaderAppVersion carries the installed version; ?version= is the fallback.
	HeaderAppVersion = "X-App-Version"
)

// RegisterRoutes mounts GET /check behind the given middleware, which must
// include auth.AuthMiddleware.
func RegisterRoutes(router gin.IRouter, service *Service, middleware ...gin.HandlerFunc) {
	handler := &httpHandler{service: service}
	handlers := append(append([]gin.HandlerFunc{}, middleware...), handler.check)
	router.GET("/check", handlers...)
}

type httpHandler struct {
	service *Service
}

func (h *httpHandler) check(c *gin.Context) {
	caller, _ := auth.CurrentCaller(c)

	req := CheckRequest{
		Platform:         headerOrQuery(c, HeaderPlatform, "platform"),
		InstalledVersion: headerOrQuery(c, HeaderAppVersion, "version"),
	}

	resp, err := h.service.CheckUpdate(c.Request.Context(), caller, req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		case errors.Is(err, ErrInvalidPlatform):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid platform"})
		case errors.Is(err, ErrIntegrityFault):
			logger.FromContext(c).Error("integrity fault at issue time",
				zap.String("platform", req.Platform), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		default:
			logger.FromContext(c).Error("check update",
				zap.String("platform", req.Platform), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	if !resp.Update {
		c.JSON(http.StatusOK, gin.H{"update": false})
		return
	}

	logger.FromContext(c).Info("grant issued",
		zap.String("platform", req.Platform),
		zap.String("subject", caller.Subject),
		zap.String("version", resp.Version),
		zap.Time("expires_at", resp.ExpiresAt))
	c.JSON(http.StatusOK, resp)
}

func headerOrQuery(c *gin.Context, header, query string) string {
	if v := c.GetHeader(header); v != "" {
		return v
	}
	return c.Query(query)
}
