package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/SergeiKhy/fileshare/internal/auth"
	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const claimsKey = "claims"

// AccountHook вызывается после успешной проверки токена. Ошибка не прерывает запрос.
type AccountHook func(ctx context.Context, claims *models.Claims) error

// Auth проверяет Authorization: Bearer <token> и кладёт claims в контекст
func Auth(verifier auth.Verifier, hook AccountHook, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Требуется заголовок Authorization: Bearer <token>",
			})
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			logger.Debug("Token rejected", zap.Error(err), zap.String("request_id", RequestID(c)))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Невалидный или просроченный токен",
			})
			return
		}

		c.Set(claimsKey, claims)

		if hook != nil {
			if err := hook(c.Request.Context(), claims); err != nil {
				logger.Warn("Account sync failed",
					zap.String("user_id", claims.Subject),
					zap.String("request_id", RequestID(c)),
					zap.Error(err),
				)
			}
		}

		c.Next()
	}
}

// ClaimsFrom claims текущего запроса, если он прошёл Auth
func ClaimsFrom(c *gin.Context) (*models.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*models.Claims)
	return claims, ok && claims != nil
}

// SubjectKey ключ rate limit по пользователю; до Auth пусто, и используется IP
func SubjectKey(c *gin.Context) string {
	if claims, ok := ClaimsFrom(c); ok {
		return "sub:" + claims.Subject
	}
	return ""
}
