package api

import (
	"context"
	"crypto/hmac"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"taskvault/internal/auth"
	"taskvault/internal/identity"
)

const (
	headerRequestID   = "X-Request-ID"
	headerServiceAuth = "X-Service-Auth"

	ctxKeyRequestID = "rid"
)

// publicPaths skip the service secret check.
var publicPaths = map[string]bool{
	"/api/auth/start": true,
	"/api/auth/user":  true,
}

var (
	corsAllowHeaders = strings.Join([]string{"Content-Type", "Authorization", headerRequestID, headerServiceAuth}, ", ")
	corsAllowMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")
)

// requestID honors an incoming X-Request-ID or generates one, and echoes it
// on the response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		c.Set(ctxKeyRequestID, rid)
		c.Header(headerRequestID, rid)
		c.Next()
	}
}

func requestIDOf(c *gin.Context) string {
	if rid := c.GetString(ctxKeyRequestID); rid != "" {
		return rid
	}
	return "-"
}

// accessLog writes one line per request and records it in the metrics.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", float64(elapsed.Microseconds()) / 1000,
			"rid", requestIDOf(c),
		}
		if id, ok := identity.FromContext(c.Request.Context()); ok {
			attrs = append(attrs, "uid", id.UserID)
		}
		s.log.Info("request", attrs...)

		if s.metrics != nil {
			s.metrics.ObserveRequest(c.Request.Method, c.FullPath(), status, elapsed)
		}
	}
}

func (s *Server) recovered(c *gin.Context, err any) {
	s.log.Error("unhandled panic", "error", err, "path", c.Request.URL.Path, "rid", requestIDOf(c))
	writeError(c, http.StatusInternalServerError, "Internal Server Error")
}

// cors answers preflights and sets CORS headers for /api routes whose
// Origin is allowed.
func (s *Server) cors() gin.HandlerFunc {
	anyOrigin := slices.Contains(s.opts.CORSOrigins, "*")
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}
		origin := c.GetHeader("Origin")
		if origin != "" && (anyOrigin || slices.Contains(s.opts.CORSOrigins, origin)) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Expose-Headers", headerRequestID)
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// serviceSecret requires X-Service-Auth to equal the shared secret on every
// non-public route.
func (s *Server) serviceSecret() gin.HandlerFunc {
	secret := []byte(s.opts.SharedSecret)
	return func(c *gin.Context) {
		if !s.opts.RequireSecret || publicPaths[c.Request.URL.Path] {
			c.Next()
			return
		}
		presented := c.GetHeader(headerServiceAuth)
		if presented == "" || !hmac.Equal([]byte(presented), secret) {
			s.log.Warn("forbidden: missing or invalid service secret", "path", c.Request.URL.Path, "rid", requestIDOf(c))
			writeError(c, http.StatusForbidden, "Forbidden")
			return
		}
		c.Next()
	}
}

// requireUser resolves the bearer token to an identity, checks it against
// the allowlist and binds it to the request context.
func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" || s.auth == nil {
			writeError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		id, err := s.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				s.log.Warn("authenticate", "error", err, "rid", requestIDOf(c))
			}
			writeError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !s.allowlist.Allows(id.Email) {
			s.log.Warn("forbidden: email not allowed", "uid", id.UserID, "rid", requestIDOf(c))
			writeError(c, http.StatusForbidden, "Forbidden")
			return
		}
		c.Request = c.Request.WithContext(identity.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func (s *Server) storeTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.StoreTimeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.StoreTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
