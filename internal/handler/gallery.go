package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/models"
)

func viewParam(c *gin.Context) string {
	if c.Query("view") == "list" {
		return "list"
	}
	return "grid"
}

// gallery - публичная галерея, новые паттерны первыми.
func (h *Handler) gallery(c *gin.Context) {
	q := c.Query("q")
	data := gin.H{"Query": q, "View": viewParam(c), "Patterns": []models.Pattern{}, "Error": ""}

	patterns, err := h.backend.ListPatterns(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load gallery", zap.Error(err))
		data["Error"] = userMessage(err)
		h.render(c, http.StatusBadGateway, "gallery.html", data)
		return
	}
	models.SortNewestFirst(patterns)
	data["Patterns"] = models.FilterPatterns(patterns, q)
	h.render(c, http.StatusOK, "gallery.html", data)
}

func (h *Handler) wordPage(c *gin.Context, word string) {
	p, err := h.backend.GetPatternByWord(c.Request.Context(), word)
	h.patternPage(c, p, err)
}

func (h *Handler) patternByID(c *gin.Context) {
	p, err := h.backend.GetPattern(c.Request.Context(), c.Param("id"))
	h.patternPage(c, p, err)
}

func (h *Handler) patternPage(c *gin.Context, p models.Pattern, err error) {
	if errors.Is(err, models.ErrNotFound) {
		h.notFound(c)
		return
	}
	if err != nil {
		h.logger.Error("Failed to load pattern", zap.String("path", c.Request.URL.Path), zap.Error(err))
		h.render(c, http.StatusBadGateway, "pattern.html", gin.H{"Pattern": nil, "ShareHost": h.shareHost, "Error": userMessage(err)})
		return
	}
	h.render(c, http.StatusOK, "pattern.html", gin.H{"Pattern": p, "ShareHost": h.shareHost, "Error": ""})
}
