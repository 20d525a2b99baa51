package handler

import (
	"net/http"
	"strings"
	"time"

	"billpay/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ctxUserID = "userID"

// TokenVerifier 校验 bearer token，返回用户 ID
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AuthMiddleware 鉴权中间件
//
// 【关键点】在读取任何用户数据之前完成校验，失败直接 401，
// 用户 ID 只来自令牌，不接受请求参数中的 user id
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := verifier.Verify(bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func currentUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// LoggerMiddleware 请求日志
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if userID := currentUserID(c); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("[HTTP]", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("[HTTP]", fields...)
		default:
			log.Info("[HTTP]", fields...)
		}
	}
}

// RecoveryMiddleware 防止 panic 导致服务崩溃
func RecoveryMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("[PANIC]", zap.Any("error", err), zap.String("path", c.Request.URL.Path), zap.Stack("stack"))
				response.ServerError(c, "Internal server error")
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
