package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Layr-Labs/zugzwang/internal/auth"
	"github.com/Layr-Labs/zugzwang/internal/obslog"
	"github.com/Layr-Labs/zugzwang/pkg/gamedto"
)

const (
	ctxCaller    = "caller"
	ctxUserID    = "userId"
	ctxRequestID = "requestId"
)

// requestID tags every request for log correlation.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// requestLogger emits one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		obslog.L().Info("http_request",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("caller", c.GetString(ctxCaller)),
		)
	}
}

// requireAuth verifies the bearer token and attaches the resolved wallet
// address as the request caller.
func requireAuth(verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gamedto.Err("missing bearer token"))
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gamedto.Err("missing bearer token"))
			return
		}
		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			obslog.L().Debug("auth_rejected", zap.String("request_id", c.GetString(ctxRequestID)), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gamedto.Err("invalid or expired token"))
			return
		}
		c.Set(ctxCaller, identity.Wallet)
		c.Set(ctxUserID, identity.UserID)
		c.Next()
	}
}
