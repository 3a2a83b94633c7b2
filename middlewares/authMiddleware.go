package middlewares

import (
	"net/http"
	"strings"

	"khawawish/auth"
	"khawawish/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClaimsKey はgin.Contextに検証済みクレームを保存するキー
const ClaimsKey = "claims"

// AuthMiddleware はBearerトークンを検証し、クレームをコンテキストにセットします。
func AuthMiddleware(secret []byte, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

		claims, err := auth.ParseToken(secret, tokenString)
		if err != nil {
			logger.Warn("認証失敗", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set("UserID", claims.UserID)
		c.Next()
	}
}

// ClaimsFrom はAuthMiddlewareがセットしたクレームを取り出します。
func ClaimsFrom(c *gin.Context) (*models.MyClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*models.MyClaims)
	return claims, ok
}
