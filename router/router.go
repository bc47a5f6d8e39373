package router

import (
	"threatlens/api"
	"threatlens/middleware"
	"threatlens/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(analysisService *service.AnalysisService, reportService *service.ReportService) *gin.Engine {
	r := gin.Default()

	// Middleware
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RequestLogMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API routes
	apiGroup := r.Group("/api")
	{
		// Auth routes (no auth required)
		authHandler := api.NewAuthHandler()
		apiGroup.POST("/auth/login", authHandler.Login)

		// Protected routes
		protected := apiGroup.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.PUT("/auth/password", authHandler.ChangePassword)

			// Analysis routes
			analysisHandler := api.NewAnalysisHandler(analysisService)
			protected.POST("/port-analysis", analysisHandler.StartAnalysis)
			protected.GET("/software-analysis/:job_id", analysisHandler.GetJobStatus)
			protected.POST("/cancel/:job_id", analysisHandler.CancelJob)
			protected.POST("/cancel-current", analysisHandler.CancelCurrent)

			// Report routes
			reportHandler := api.NewReportHandler(reportService)
			reportGroup := protected.Group("/reports")
			{
				reportGroup.GET("", reportHandler.ListReports)
				reportGroup.GET("/:domain", reportHandler.GetReport)
				reportGroup.DELETE("/:domain", middleware.AdminMiddleware(), reportHandler.DeleteReport)
			}
		}
	}

	return r
}
