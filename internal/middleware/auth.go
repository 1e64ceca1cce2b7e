package middleware

import (
	"strings"

	"skillpath_backend/internal/model"
	"skillpath_backend/internal/util"
	"skillpath_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SecretFunc 返回当前的 JWT 密钥，配置热更新后取到新值
type SecretFunc func() string

func AuthMiddleware(secret SecretFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, secret())
		if err != nil {
			logger.Log.Debug("JWT解析错误", zap.Error(err), zap.String("path", c.FullPath()))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Next()
	}
}

// RoleMiddleware 管理员直接放行
func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := user.Role == model.Admin
		for _, role := range roles {
			if user.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			logger.Log.Info("role check failed",
				zap.Uint("userId", user.UserID),
				zap.String("role", string(user.Role)),
				zap.String("path", c.FullPath()))
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
