// Package middleware 提供HTTP中间件
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 上下文键
const (
	CtxAuthenticated = "authenticated"
	CtxPrincipal     = "principal"
	CtxRequestID     = "request_id"
)

// AuthConfig API认证配置
type AuthConfig struct {
	Enabled   bool
	APIKeys   []string
	JWTSecret string
	JWTIssuer string
}

// Auth API认证中间件，接受两种凭证：
//  1. Header: X-API-Key: <key> 或 Authorization: Bearer <key>
//  2. Header: Authorization: Bearer <HS256 JWT>（配置 jwtSecret 时）
//
// 未启用时直接放行
func Auth(cfg AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys[k] = struct{}{}
		}
	}
	secret := []byte(cfg.JWTSecret)

	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		bearer := ""
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			bearer = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}

		if apiKey == "" && bearer == "" {
			logger.Warn("api auth: missing credentials",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("remote_addr", c.ClientIP()),
				zap.String("user_agent", c.Request.UserAgent()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "provide X-API-Key or Authorization: Bearer <token>",
			})
			return
		}

		for _, candidate := range []string{apiKey, bearer} {
			if _, ok := keys[candidate]; ok && candidate != "" {
				c.Set(CtxAuthenticated, true)
				c.Set(CtxPrincipal, "key:"+maskAPIKey(candidate))
				c.Next()
				return
			}
		}

		if bearer != "" && len(secret) > 0 {
			claims, err := ParseJWT(bearer, secret, cfg.JWTIssuer)
			if err == nil {
				c.Set(CtxAuthenticated, true)
				c.Set(CtxPrincipal, "jwt:"+claims.Subject)
				c.Next()
				return
			}
			logger.Warn("api auth: invalid jwt",
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.ClientIP()),
				zap.Error(err),
			)
		} else {
			logger.Warn("api auth: invalid api key",
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.ClientIP()),
				zap.String("api_key_prefix", maskAPIKey(apiKey+bearer)),
			)
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"status":  "error",
			"message": "invalid credentials",
		})
	}
}

// maskAPIKey 脱敏API Key（仅显示前4位和后4位）
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
