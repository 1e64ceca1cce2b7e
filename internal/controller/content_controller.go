package controller

import (
	"skillpath_backend/internal/service"
	"skillpath_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ContentController 路径、单元、测验的编写接口（作者/管理员）
type ContentController struct {
	ContentService *service.ContentService
}

func NewContentController(contentService *service.ContentService) *ContentController {
	return &ContentController{ContentService: contentService}
}

// CreateTrack godoc
// @Summary 创建学习路径
// @Tags 内容管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body service.TrackRequest true "路径"
// @Success 201 {object} util.Response{data=model.Track}
// @Failure 400 {object} util.Response
// @Router /api/admin/tracks [post]
func (c *ContentController) CreateTrack(ctx *gin.Context) {
	var req service.TrackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	track, err := c.ContentService.CreateTrack(ctx.Request.Context(), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, track)
}

// AddUnit godoc
// @Summary 向路径添加单元
// @Tags 内容管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "路径ID"
// @Param request body service.UnitRequest true "单元"
// @Success 201 {object} util.Response{data=model.ContentUnit}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/admin/tracks/{id}/units [post]
func (c *ContentController) AddUnit(ctx *gin.Context) {
	trackID := util.MustParseUint(ctx.Param("id"))
	if trackID == 0 {
		util.BadRequest(ctx, "invalid track id")
		return
	}
	var req service.UnitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	unit, err := c.ContentService.AddUnit(ctx.Request.Context(), trackID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, unit)
}

// UpdateUnit godoc
// @Summary 修改单元
// @Description 已有学员完成的单元不可修改
// @Tags 内容管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "单元ID"
// @Param request body service.UnitRequest true "单元"
// @Success 200 {object} util.Response{data=model.ContentUnit}
// @Failure 409 {object} util.Response
// @Router /api/admin/units/{id} [put]
func (c *ContentController) UpdateUnit(ctx *gin.Context) {
	unitID := util.MustParseUint(ctx.Param("id"))
	if unitID == 0 {
		util.BadRequest(ctx, "invalid unit id")
		return
	}
	var req service.UnitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	unit, err := c.ContentService.UpdateUnit(ctx.Request.Context(), unitID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, unit)
}

// PublishQuiz godoc
// @Summary 发布测验新版本
// @Tags 内容管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body service.QuizRequest true "测验"
// @Success 201 {object} util.Response{data=model.QuizDefinition}
// @Failure 400 {object} util.Response
// @Router /api/admin/quizzes [post]
func (c *ContentController) PublishQuiz(ctx *gin.Context) {
	var req service.QuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	quiz, err := c.ContentService.PublishQuiz(ctx.Request.Context(), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, quiz)
}
