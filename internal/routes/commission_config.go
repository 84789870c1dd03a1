package routes

import (
	"syntarex/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupCommissionConfigRoutes sets up the admin configuration routes
func SetupCommissionConfigRoutes(r *gin.Engine) {
	settings := r.Group("/commission-settings")
	{
		settings.GET("", handlers.GetCommissionSettings)
		settings.PUT("", handlers.UpdateCommissionSettings)
	}

	ranks := r.Group("/rank-definitions")
	{
		ranks.GET("", handlers.ListRankDefinitions)
		ranks.POST("", handlers.CreateRankDefinition)
		ranks.PUT("/:id", handlers.UpdateRankDefinition)
		ranks.DELETE("/:id", handlers.DeleteRankDefinition)
	}
}
