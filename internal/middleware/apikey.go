package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// AdminKeyHeader заголовок с административным ключом
	AdminKeyHeader = "X-API-Key"

	adminKeyNameKey = "admin_key_name"
)

// AdminKey middleware административных маршрутов. Ключ принимается только из заголовка:
// Authorization занят пользовательским токеном, а query попадает в логи.
type AdminKey struct {
	// keys карта валидных ключей к их описаниям
	keys map[string]string
}

// NewAdminKey без ключей все административные маршруты закрыты
func NewAdminKey(keys map[string]string) *AdminKey {
	return &AdminKey{keys: keys}
}

// Middleware возвращает Gin middleware handler для проверки ключа
func (ak *AdminKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(AdminKeyHeader)
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "Требуется API ключ в заголовке X-API-Key",
			})
			return
		}

		// Валидация с использованием constant-time comparison
		valid := false
		var keyName string
		for validKey, name := range ak.keys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
				valid = true
				keyName = name
			}
		}

		if !valid {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "invalid_api_key",
				"message": "Невалидный API ключ",
			})
			return
		}

		c.Set(adminKeyNameKey, keyName)
		c.Next()
	}
}

// AdminKeyName описание ключа, которым авторизован запрос
func AdminKeyName(c *gin.Context) string {
	return c.GetString(adminKeyNameKey)
}
