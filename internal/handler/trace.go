package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/generation"
)

// trace показывает сохраненные HTTP-трассы генерации паттерна.
func (h *Handler) trace(c *gin.Context) {
	id := c.Param("id")
	traces, err := h.backend.PatternTrace(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load pattern trace", zap.String("pattern_id", id), zap.Error(err))
		h.render(c, backendStatus(err), "trace.html", gin.H{"PatternID": id, "Traces": []generation.HTTPTrace{}, "Error": userMessage(err)})
		return
	}
	h.render(c, http.StatusOK, "trace.html", gin.H{"PatternID": id, "Traces": traces, "Error": ""})
}
