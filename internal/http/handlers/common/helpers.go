package common

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/centaur-backend/internal/dto"
	"github.com/ignatzorin/centaur-backend/internal/http/middleware"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CurrentUserID возвращает пользователя, положенного в контекст AuthMiddleware.
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	if userID, ok := c.Value(middleware.ContextUserIDKey).(uuid.UUID); ok && userID != uuid.Nil {
		return userID, nil
	}
	return uuid.Nil, apperror.ErrUnauthorized
}

// CurrentUserRole возвращает платформенную роль из токена.
func CurrentUserRole(c *gin.Context) string {
	return c.GetString(middleware.ContextRoleKey)
}

// ParseUUIDParam читает UUID из параметра пути.
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.Validation("параметр " + name + " должен быть валидным UUID")
	}
	return id, nil
}

// Fail отдаёт ошибку сервиса в ErrorHandler.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// RespondSuccess отвечает на команды вида accept/toggle/offboard.
func RespondSuccess(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: message, Data: data})
}

func RespondUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
		Error: apperror.PublicMessage(apperror.ErrUnauthorized),
	})
}

// RespondBadRequest отвечает 400 на тело или query, не прошедшие биндинг.
func RespondBadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "некорректный запрос"
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: message})
}

// GetPagination читает limit/offset, приводя их к допустимым границам.
func GetPagination(c *gin.Context) (limit, offset int) {
	limit = queryInt(c, "limit", defaultPageSize)
	offset = max(queryInt(c, "offset", 0), 0)
	if limit < 1 {
		limit = defaultPageSize
	}
	return min(limit, maxPageSize), offset
}

func queryInt(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return n
}
