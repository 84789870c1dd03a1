package routes

import (
	"syntarex/internal/handlers"
	"syntarex/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupCommissionSettleRoutes sets up the weekly settlement routes. Triggers
// are rate limited; reads are not.
func SetupCommissionSettleRoutes(r *gin.Engine, cfg RouterConfig) {
	handlers.RegisterValidators()

	settle := r.Group("/commission-settle")
	{
		trigger := settle.Group("")
		if cfg.RateLimit.RequestsPerSecond > 0 {
			trigger.Use(middleware.RateLimiterMiddleware(cfg.RateLimit))
		}
		trigger.POST("/calculate", handlers.CalculateCommissionSettlement)
		trigger.POST("/finalize", handlers.FinalizeCommissionSettlement)

		settle.GET("/:week", handlers.GetCommissionSettlement)
		settle.GET("/:week/entries", handlers.ListCommissionEntries)
		settle.GET("/:week/sales", handlers.GetWeeklySales)
		settle.GET("/:week/proof/:user_id", handlers.GetSettlementProof)
	}

	if cfg.Events != nil {
		r.GET("/ws/commission-settle", gin.WrapH(cfg.Events))
	}
}
