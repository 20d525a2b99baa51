package handler

import (
	"billpay/internal/infrastructure/metrics"

	"github.com/gin-gonic/gin"
	ginmetrics "github.com/slok/go-http-metrics/middleware/gin"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, verifier TokenVerifier, m *metrics.Metrics, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())
	r.Use(ginmetrics.Handler("", m.HTTPMiddleware()))

	// 公共接口
	r.NoRoute(h.NoRoute)
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/catalog", h.GetCatalog)
	r.POST("/signup", h.Signup)
	r.POST("/login", h.Login)

	// 以下接口需要 bearer token
	authed := r.Group("/", AuthMiddleware(verifier))
	{
		authed.GET("/profile", h.GetProfile)
		authed.PUT("/profile", h.UpdateProfile)
		authed.DELETE("/account", h.DeleteAccount)

		authed.GET("/wallet", h.GetWallet)
		authed.PUT("/wallet", h.SetBalance)
		authed.POST("/wallet/topup", h.TopUp)

		authed.GET("/transactions", h.GetTransactions)
		authed.POST("/transactions", h.AddTransaction)
		authed.PATCH("/transactions/:id/status", h.UpdateTransactionStatus)

		authed.POST("/payments", h.PayBill)

		authed.GET("/cards", h.GetCards)
		authed.POST("/cards", h.AddCard)
		authed.DELETE("/cards/:cardId", h.DeleteCard)
	}

	return r
}
