package app

import (
	"reaction_timer_backend/docs"
	"reaction_timer_backend/internal/config"
	"reaction_timer_backend/internal/middleware"
	"reaction_timer_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")

	// Public, identity optional.
	public := api.Group("")
	public.Use(middleware.TryAuthMiddleware(cfg))
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
		public.POST("/logout", c.auth.Logout)
		public.GET("/me", c.auth.Me)

		public.GET("/fastest", c.score.Fastest)
		public.GET("/leaderboard", c.score.Leaderboard)
		public.GET("/leaderboard/ws", c.score.LeaderboardWs)
	}

	authorized := api.Group("")
	authorized.Use(middleware.AuthMiddleware(cfg))
	{
		authorized.POST("/start", c.challenge.Start)
		authorized.POST("/submit", c.challenge.Submit)
		authorized.GET("/history", c.score.History)
	}
}
