package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mbonchek/patterning-web-v2/internal/models"
)

// APIError - неуспешный ответ бэкенда.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: server returned %d", e.Op, e.StatusCode)
}

// Unwrap позволяет проверять 404 через errors.Is(err, models.ErrNotFound).
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return models.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return models.ErrBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.ErrUnauthorized
	}
	return nil
}

// StatusCode извлекает HTTP-статус из ошибки клиента; 0, если ошибка не от бэкенда.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
