package middleware

import (
	"strings"

	auth "shortlink-engine/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// OptionalAuthMiddleware 带令牌则解析身份，不带则作为匿名请求放行。
// 创建短链接允许匿名，这条路由不能强制认证。
func OptionalAuthMiddleware(jwtManager *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if claims, err := jwtManager.ValidateToken(parts[1]); err == nil {
				c.Set("user_id", claims.UserID)
				c.Set("username", claims.Username)
				c.Set("role", claims.Role)
			}
		}
		c.Next()
	}
}
