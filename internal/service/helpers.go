package service

import "github.com/ignatzorin/centaur-backend/internal/pkg/apperror"

// invalid превращает ошибку пакета validation в ошибку валидации для клиента.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	return apperror.Validation(err.Error())
}

// pageBounds приводит параметры пагинации к допустимым значениям.
func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
