package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/opsai-platform/analytics-backend-go/internal/api/handlers"
	"github.com/opsai-platform/analytics-backend-go/internal/api/middleware"
	"github.com/opsai-platform/analytics-backend-go/internal/config"
	"github.com/opsai-platform/analytics-backend-go/internal/websocket"
)

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, h *handlers.Handlers, hub *websocket.Hub, registry *prometheus.Registry, logger *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.MetricsMiddleware(middleware.NewHTTPMetrics(registry)))

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/ws", websocket.Handler(hub))

	api := router.Group("/api/v1")
	{
		queries := api.Group("/queries")
		{
			queries.POST("", h.CreateQuery)
			queries.GET("", h.ListQueries)
			queries.GET("/:id", h.GetQuery)
			queries.PUT("/:id", h.UpdateQuery)
			queries.DELETE("/:id", h.DeleteQuery)
			queries.POST("/:id/execute", h.ExecuteQuery)
			queries.POST("/:id/export", h.ExportQuery)
		}

		dashboards := api.Group("/dashboards")
		{
			dashboards.POST("", h.CreateDashboard)
			dashboards.GET("", h.ListDashboards)
			dashboards.GET("/:id", h.GetDashboard)
			dashboards.PUT("/:id", h.UpdateDashboard)
			dashboards.DELETE("/:id", h.DeleteDashboard)
			dashboards.GET("/:id/data", h.GetDashboardData)
			dashboards.POST("/:id/invalidate", h.InvalidateDashboard)
		}

		reports := api.Group("/reports")
		{
			reports.POST("", h.CreateReport)
			reports.GET("", h.ListReports)
			reports.GET("/:id", h.GetReport)
			reports.POST("/:id/generate", h.GenerateReport)
			reports.DELETE("/:id", h.DeleteReport)
		}

		api.GET("/insights", h.GetInsights)
		api.GET("/metrics/business", h.GetBusinessMetrics)
	}

	return router
}
