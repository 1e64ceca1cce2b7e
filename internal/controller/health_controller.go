package controller

import (
	"context"
	"net/http"
	"time"

	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB       *gorm.DB
	Redis    *redis.Client
	TaskRepo *repository.CredentialTaskRepository
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, taskRepo *repository.CredentialTaskRepository) *HealthController {
	return &HealthController{DB: db, Redis: rdb, TaskRepo: taskRepo}
}

// @Summary 健康检查
// @Description 检查数据库、缓存状态以及待处理的证书任务数量
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	// 检查数据库连接
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	components := gin.H{"database": "up", "cache": "disabled"}
	if c.Redis != nil {
		if err := c.Redis.Ping(pingCtx).Err(); err != nil {
			// 缓存不可用时验证接口仍可回源数据库
			components["cache"] = "down"
		} else {
			components["cache"] = "up"
		}
	}

	pending, err := c.TaskRepo.CountPending(pingCtx)
	if err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	util.Success(ctx, gin.H{
		"status":                 "ok",
		"components":             components,
		"pendingCredentialTasks": pending,
	})
}
