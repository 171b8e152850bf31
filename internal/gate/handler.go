package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/abduss/otagate/internal/filestore"
	"github.com/abduss/otagate/internal/logger"
	"github.com/abduss/otagate/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GrantQueryParam names the query parameter carrying the download grant.
const GrantQueryParam = "grant"

// Handler serves bundles, each request gated by a grant.
type Handler struct {
	verifier *Verifier
	store    filestore.Store
}

// NewHandler constructs a Handler.
func NewHandler(verifier *Verifier, store filestore.Store) *Handler {
	return &Handler{verifier: verifier, store: store}
}

// RegisterRoutes mounts GET and HEAD /files/*resourcePath. No other route
// exposes stored bytes, and there is no directory listing.
func RegisterRoutes(router gin.IRouter, h *Handler) {
	router.GET("/files/*resourcePath", h.serve)
	router.HEAD("/files/*resourcePath", h.serve)
}

func (h *Handler) serve(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(c)
	resourcePath := strings.TrimPrefix(c.Param("resourcePath"), "/")

	if err := filestore.ValidatePath(resourcePath); err != nil {
		deny(c, err, resourcePath)
		return
	}

	g, err := h.verifier.Authorize(ctx, resourcePath, c.Query(GrantQueryParam))
	if err != nil {
		deny(c, err, resourcePath)
		return
	}
	log = log.With(zap.String("resource_path", resourcePath), zap.String("grant_id", g.ID), zap.String("subject", g.Subject))

	if g.ContentHash != "" {
		if err := h.verifyDigest(ctx, resourcePath, g.ContentHash); err != nil {
			h.storeFailure(c, log, err)
			return
		}
	}

	obj, err := h.store.Open(ctx, resourcePath)
	if err != nil {
		h.storeFailure(c, log, err)
		return
	}
	defer obj.Body.Close()

	etag := obj.ETag
	if g.ContentHash != "" {
		etag = strings.ToLower(g.ContentHash)
	}
	header := c.Writer.Header()
	header.Set("Content-Type", obj.ContentType)
	header.Set("Cache-Control", "private, no-store")
	header.Set("X-Content-Type-Options", "nosniff")
	if etag != "" {
		header.Set("ETag", strconv.Quote(etag))
	}

	if seeker, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(c.Writer, c.Request, path.Base(resourcePath), obj.ModTime, seeker)
		metrics.BytesServed(int64(c.Writer.Size()))
		return
	}

	header.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	c.Status(http.StatusOK)
	if c.Request.Method == http.MethodHead {
		return
	}
	n, err := io.Copy(c.Writer, obj.Body)
	metrics.BytesServed(n)
	if err != nil {
		log.Warn("stream bundle interrupted", zap.Int64("bytes", n), zap.Error(err))
	}
}

// verifyDigest compares the stored bytes at resourcePath with the digest the
// grant was issued for.
func (h *Handler) verifyDigest(ctx context.Context, resourcePath, granted string) error {
	digest, err := h.store.Digest(ctx, resourcePath)
	if err != nil {
		return err
	}
	if !filestore.EqualDigest(digest, granted) {
		return fmt.Errorf("%w: granted %s, stored %s", ErrIntegrityFault, granted, digest)
	}
	return nil
}

// storeFailure answers after a grant was accepted but storage could not
// deliver. A missing object means metadata and storage disagree.
func (h *Handler) storeFailure(c *gin.Context, log *zap.Logger, err error) {
	if errors.Is(err, ErrIntegrityFault) {
		metrics.IntegrityFault("gate")
		log.Error("integrity fault: stored bytes do not match granted digest", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if errors.Is(err, filestore.ErrNotFound) {
		metrics.IntegrityFault("gate")
		log.Error("integrity fault: granted object missing", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	log.Error("read bundle", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// deny writes the uniform refusal. The specific reason only reaches logs and metrics.
func deny(c *gin.Context, err error, resourcePath string) {
	reason := DenialReason(err)
	metrics.GrantDenied(reason)

	log := logger.FromContext(c)
	fields := []zap.Field{zap.String("reason", reason), zap.String("resource_path", resourcePath), zap.Error(err)}
	if reason == ReasonRevocationUnavailable {
		log.Error("grant denied", fields...)
	} else {
		log.Warn("grant denied", fields...)
	}

	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
}
