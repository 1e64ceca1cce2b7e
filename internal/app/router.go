package app

import (
	"skillpath_backend/internal/middleware"
	"skillpath_backend/internal/model"
	"skillpath_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.GET("/public/credentials/:hash", c.credential.Verify)
	}

	// 2. 学员接口
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(a.jwtSecret))
	{
		authGroup.GET("/tracks", c.progression.ListTracks)
		authGroup.GET("/tracks/:id/progress", c.progression.GetTrackProgress)
		authGroup.POST("/units/:id/complete", c.progression.CompleteUnit)
		authGroup.POST("/units/:id/quiz", c.progression.SubmitQuiz)
		authGroup.GET("/units/:id/attempts", c.progression.ListAttempts)

		authGroup.GET("/xp", c.xp.GetSummary)
		authGroup.GET("/xp/history", c.xp.GetHistory)
		authGroup.GET("/xp/leaderboard", c.xp.GetLeaderboard)

		authGroup.GET("/credentials", c.credential.ListMine)

		authGroup.GET("/user/profile", c.user.GetProfile)
		authGroup.PUT("/user/profile", c.user.UpdateProfile)
	}

	// 3. 内容编写与运维接口
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(a.jwtSecret), middleware.RoleMiddleware(model.Author))
	{
		admin.POST("/tracks", c.content.CreateTrack)
		admin.POST("/tracks/:id/units", c.content.AddUnit)
		admin.PUT("/units/:id", c.content.UpdateUnit)
		admin.POST("/quizzes", c.content.PublishQuiz)
	}

	ops := router.Group("/api/admin")
	ops.Use(middleware.AuthMiddleware(a.jwtSecret), middleware.RoleMiddleware(model.Admin))
	{
		ops.POST("/credentials/reconcile", c.credential.Reconcile)
	}
}
