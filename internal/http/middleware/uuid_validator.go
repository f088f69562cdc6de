package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
)

// UUIDValidator отклоняет запрос с 400, если любой из параметров пути не UUID.
// Пример: orders.GET("/:id", UUIDValidator("id"), h.GetOrder)
func UUIDValidator(params ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range params {
			value := c.Param(name)
			if value == "" {
				_ = c.Error(apperror.Validation("параметр " + name + " обязателен"))
				c.Abort()
				return
			}
			if _, err := uuid.Parse(value); err != nil {
				_ = c.Error(apperror.Validation("параметр " + name + " должен быть валидным UUID"))
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
