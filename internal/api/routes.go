package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Identity imports
		v1.POST("/imports/validate", handler.ValidateImport)
		v1.POST("/imports", handler.SubmitImport)
		v1.POST("/imports/:batch_id/commit", handler.CommitImport)
		v1.GET("/imports/:batch_id/state", handler.GetImportState)
		v1.GET("/imports/:batch_id/items", handler.ListImportItems)
		v1.GET("/imports/:batch_id/errors", handler.ListImportErrors)
		v1.GET("/imports/:batch_id/progress", handler.StreamProgress)

		// Provisioning
		v1.POST("/provisioning", handler.CreateProvisioning)
		v1.POST("/provisioning/:batch_id/run", handler.RunProvisioning)
		v1.GET("/provisioning/:batch_id/items", handler.ListProvisioningItems)

		v1.GET("/templates/:role", handler.GetTemplate)
		v1.GET("/history", handler.ListHistory)
	}
}

// NewRouter builds the engine with the middleware chain.
func NewRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(CORSMiddleware())
	router.Use(LoggingMiddleware())
	router.Use(RecoveryMiddleware())

	SetupRoutes(router, handler)
	return router
}
