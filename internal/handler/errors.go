package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/client"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

// CustomErrorMiddleware логирует ошибки обработчиков и отдает 500, если ответ еще не записан.
func CustomErrorMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			if status := c.Writer.Status(); status >= http.StatusInternalServerError {
				logger.Warn("Request resulted in server error status",
					zap.Int("status", status),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
			}
			return
		}
		for _, ginErr := range c.Errors {
			meta, _ := ginErr.Meta.(string)
			logger.Error("Handler error",
				zap.Error(ginErr.Err),
				zap.String("meta", meta),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
		}
		if !c.Writer.Written() {
			c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
	}
}

// noRoute отдает страницу паттерна для одиночного сегмента пути, иначе 404.
func (h *Handler) noRoute(c *gin.Context) {
	word := strings.Trim(c.Request.URL.Path, "/")
	if c.Request.Method == http.MethodGet && word != "" && !strings.ContainsAny(word, "/.") {
		h.wordPage(c, word)
		return
	}
	h.notFound(c)
}

func (h *Handler) notFound(c *gin.Context) {
	h.render(c, http.StatusNotFound, "404.html", gin.H{"Path": c.Request.URL.Path})
}

// userMessage - текст ошибки для красной плашки.
func userMessage(err error) string {
	var apiErr *client.APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "The backend did not respond in time"
	case errors.Is(err, models.ErrConfirmationRequired):
		return "Please confirm the action first"
	case errors.As(err, &apiErr):
		return apiErr.Error()
	case errors.Is(err, models.ErrNotFound):
		return "Not found"
	}
	return err.Error()
}

// backendStatus - HTTP-статус страницы, которая не смогла получить данные бэкенда.
func backendStatus(err error) int {
	if errors.Is(err, models.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// fail логирует ошибку, кладет ее во flash и перенаправляет на target.
func (h *Handler) fail(c *gin.Context, target, op string, err error) {
	h.logger.Error("Admin action failed", zap.String("op", op), zap.Error(err))
	h.auth.SetFlash(c, "error", userMessage(err))
	c.Redirect(http.StatusSeeOther, target)
}

// succeed кладет сообщение об успехе во flash и перенаправляет на target.
func (h *Handler) succeed(c *gin.Context, target, message string) {
	h.auth.SetFlash(c, "success", message)
	c.Redirect(http.StatusSeeOther, target)
}

// confirmation - данные шага подтверждения разрушительного действия.
type confirmation struct {
	Title   string
	Message string
	Action  string
	Fields  map[string]string
	Button  string
	Cancel  string
}

// confirmed сообщает, что форма прошла шаг подтверждения.
func confirmed(c *gin.Context) error {
	if c.PostForm("confirm") != "yes" {
		return models.ErrConfirmationRequired
	}
	return nil
}
