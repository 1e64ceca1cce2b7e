package controller

import (
	"strconv"

	"skillpath_backend/internal/service"
	"skillpath_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type XPController struct {
	XPService *service.XPService
}

func NewXPController(xpService *service.XPService) *XPController {
	return &XPController{XPService: xpService}
}

// GetSummary godoc
// @Summary 获取当前学员的经验值与等级
// @Tags 经验值
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.XPSummary}
// @Router /api/xp [get]
func (c *XPController) GetSummary(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	summary, err := c.XPService.Summary(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

// GetHistory godoc
// @Summary 经验值流水
// @Tags 经验值
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "返回条数" default(20)
// @Success 200 {object} util.Response{data=[]model.XPLedgerEntry}
// @Router /api/xp/history [get]
func (c *XPController) GetHistory(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	entries, err := c.XPService.History(ctx.Request.Context(), claims.UserID, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, entries)
}

// GetLeaderboard godoc
// @Summary 经验值排行榜
// @Tags 经验值
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "返回条数" default(10)
// @Success 200 {object} util.Response{data=[]service.LeaderboardEntry}
// @Router /api/xp/leaderboard [get]
func (c *XPController) GetLeaderboard(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	entries, err := c.XPService.GetLeaderboard(ctx.Request.Context(), limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, entries)
}
