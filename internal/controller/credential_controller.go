package controller

import (
	"skillpath_backend/internal/service"
	"skillpath_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CredentialController struct {
	Credentials *service.CredentialService
	Outbox      *service.CredentialOutboxService
}

func NewCredentialController(credentials *service.CredentialService, outbox *service.CredentialOutboxService) *CredentialController {
	return &CredentialController{Credentials: credentials, Outbox: outbox}
}

// ListMine godoc
// @Summary 获取当前学员的证书
// @Tags 证书
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Credential}
// @Router /api/credentials [get]
func (c *CredentialController) ListMine(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	creds, err := c.Credentials.ListForLearner(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, creds)
}

// Verify godoc
// @Summary 公开验证证书
// @Description 按验证哈希查询证书，无需登录
// @Tags 证书
// @Produce json
// @Param hash path string true "验证哈希"
// @Success 200 {object} util.Response{data=service.CredentialVerification}
// @Failure 404 {object} util.Response
// @Router /api/public/credentials/{hash} [get]
func (c *CredentialController) Verify(ctx *gin.Context) {
	view, err := c.Credentials.Verify(ctx.Request.Context(), ctx.Param("hash"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// Reconcile godoc
// @Summary 补登缺失的证书任务并处理待办
// @Tags 证书
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.ReconcileStats}
// @Router /api/admin/credentials/reconcile [post]
func (c *CredentialController) Reconcile(ctx *gin.Context) {
	stats, err := c.Outbox.Reconcile(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}
