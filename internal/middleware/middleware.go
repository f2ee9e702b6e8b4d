// Package middleware provides the Gin middleware used by the Mama Bear API:
// request IDs, logging, rate limiting, panic recovery, API key checks and CORS.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/Gemini-Podplai/mumabear/internal/logging"
	"github.com/Gemini-Podplai/mumabear/pkg/cache"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// ContextRequestID is the gin context key holding the request id.
const ContextRequestID = "request_id"

// RequestID assigns each request an id, reusing a well-formed inbound
// X-Request-ID header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		c.Set(ContextRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id set by RequestID, or a fresh one.
func GetRequestID(c *gin.Context) string {
	if id := c.GetString(ContextRequestID); id != "" {
		return id
	}
	return uuid.New().String()
}

// Logging logs one line per request at a level chosen by status code.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}

		c.Next()

		status := c.Writer.Status()
		entry := logging.WithRequest(c.GetString(ContextRequestID)).WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"bytes":      c.Writer.Size(),
		})

		switch {
		case status >= 500:
			entry.WithField("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()).Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request served")
		}
	}
}

// rateLimitID identifies the caller by API key prefix, falling back to the
// client IP.
func rateLimitID(c *gin.Context) string {
	key := c.GetHeader("X-API-Key")
	if key == "" {
		key = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if key == "" {
		return c.ClientIP()
	}
	// Only a prefix is stored in Redis.
	if len(key) > 16 {
		key = key[:16]
	}
	return key
}

// RateLimit enforces maxRequests per window per caller. It is a no-op when
// rc is nil or maxRequests is zero, and fails open on Redis errors.
func RateLimit(rc *cache.Cache, maxRequests int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rc == nil || maxRequests <= 0 {
			c.Next()
			return
		}

		allowed, err := rc.RateLimitCheck(c.Request.Context(), rateLimitID(c), maxRequests, window)
		if err != nil {
			logging.WithRequest(c.GetString(ContextRequestID)).WithError(err).Warn("Rate limit check failed; allowing request")
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

// Recovery turns panics into a 500 with the standard error envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logging.WithRequest(c.GetString(ContextRequestID)).WithField("panic", r).Error("Recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error":   "An unexpected error occurred.",
				})
			}
		}()
		c.Next()
	}
}

func presentedKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// APIKeyAuth requires X-API-Key (or a bearer token) to equal expected.
// When expected is empty, required decides: true rejects everything with
// 503 (fail-secure), false lets every request through.
func APIKeyAuth(expected string, required bool) gin.HandlerFunc {
	want := sha256.Sum256([]byte(expected))
	return func(c *gin.Context) {
		if expected == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"success": false,
					"error":   "Management API disabled: no admin API key configured.",
				})
				return
			}
			c.Next()
			return
		}

		key := presentedKey(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Missing API key. Provide X-API-Key header or Authorization: Bearer <key>.",
			})
			return
		}
		got := sha256.Sum256([]byte(key))
		if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid API key.",
			})
			return
		}
		c.Next()
	}
}

// CORS allows the configured origins. A "*" entry allows any origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key", RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", RequestIDHeader, "X-Cost-USD", "X-Latency-Ms"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	for _, o := range allowedOrigins {
		if o == "*" {
			// Credentials cannot be combined with a wildcard origin.
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cors.New(cfg)
		}
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cors.New(cfg)
	}
	cfg.AllowOrigins = allowedOrigins
	return cors.New(cfg)
}
