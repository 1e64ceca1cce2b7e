package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"skillpath_backend/internal/service"
	"skillpath_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ProgressionController 学习路径、单元完成与测验提交
type ProgressionController struct {
	Content    *service.ContentService
	Progress   *service.ProgressService
	Completion *service.CompletionService
}

func NewProgressionController(content *service.ContentService, progress *service.ProgressService, completion *service.CompletionService) *ProgressionController {
	return &ProgressionController{
		Content:    content,
		Progress:   progress,
		Completion: completion,
	}
}

// CompleteUnitRequest 非测验单元的完成请求，score 可选
// swagger:model CompleteUnitRequest
type CompleteUnitRequest struct {
	Score *int `json:"score"`
}

// SubmitQuizRequest answers 以题目下标为键
// swagger:model SubmitQuizRequest
type SubmitQuizRequest struct {
	Answers service.Answers `json:"answers"`
}

// ListTracks godoc
// @Summary 获取学习路径列表
// @Tags 学习路径
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Track}
// @Router /api/tracks [get]
func (c *ProgressionController) ListTracks(ctx *gin.Context) {
	tracks, err := c.Content.ListTracks(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, tracks)
}

// GetTrackProgress godoc
// @Summary 获取当前学员在某路径上的进度
// @Tags 学习路径
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "路径ID"
// @Success 200 {object} util.Response{data=service.TrackProgress}
// @Failure 404 {object} util.Response
// @Router /api/tracks/{id}/progress [get]
func (c *ProgressionController) GetTrackProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	trackID := util.MustParseUint(ctx.Param("id"))
	if trackID == 0 {
		util.BadRequest(ctx, "invalid track id")
		return
	}

	progress, err := c.Progress.TrackProgress(ctx.Request.Context(), claims.UserID, trackID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// CompleteUnit godoc
// @Summary 标记单元完成
// @Description 阅读、编程、面试单元的完成；重复提交幂等
// @Tags 学习路径
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "单元ID"
// @Param request body CompleteUnitRequest false "可选分数"
// @Success 200 {object} util.Response{data=service.CompletionResult}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response "单元未解锁"
// @Failure 503 {object} util.Response
// @Router /api/units/{id}/complete [post]
func (c *ProgressionController) CompleteUnit(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	unitID := util.MustParseUint(ctx.Param("id"))
	if unitID == 0 {
		util.BadRequest(ctx, "invalid unit id")
		return
	}

	var req CompleteUnitRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	result, err := c.Completion.CompleteUnit(ctx.Request.Context(), claims.UserID, unitID, req.Score)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// ListAttempts godoc
// @Summary 当前学员在测验单元上的答题记录
// @Tags 学习路径
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "单元ID"
// @Success 200 {object} util.Response{data=[]model.QuizAttempt}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/units/{id}/attempts [get]
func (c *ProgressionController) ListAttempts(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	unitID := util.MustParseUint(ctx.Param("id"))
	if unitID == 0 {
		util.BadRequest(ctx, "invalid unit id")
		return
	}

	attempts, err := c.Completion.ListAttempts(ctx.Request.Context(), claims.UserID, unitID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// SubmitQuiz godoc
// @Summary 提交测验答案
// @Description 按最新版本评分；通过后完成单元
// @Tags 学习路径
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "单元ID"
// @Param request body SubmitQuizRequest true "答案"
// @Success 200 {object} util.Response{data=service.QuizSubmissionResult}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response "单元未解锁"
// @Router /api/units/{id}/quiz [post]
func (c *ProgressionController) SubmitQuiz(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	unitID := util.MustParseUint(ctx.Param("id"))
	if unitID == 0 {
		util.BadRequest(ctx, "invalid unit id")
		return
	}

	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		util.BadRequest(ctx, "invalid request body")
		return
	}
	// 保留数字原貌，区分 1 与 1.5
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var req SubmitQuizRequest
	if err := dec.Decode(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.Completion.SubmitQuiz(ctx.Request.Context(), claims.UserID, unitID, req.Answers)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
