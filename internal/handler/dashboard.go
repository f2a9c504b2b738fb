package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mbonchek/patterning-web-v2/internal/models"
	"github.com/mbonchek/patterning-web-v2/internal/storage"
)

const dashboardArchivedRuns = 10

func (h *Handler) dashboard(c *gin.Context) {
	var (
		patterns []models.Pattern
		prompts  []models.Prompt
		summary  *models.RunsSummary
		archived []storage.RunRecord
	)

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) {
		patterns, err = h.backend.ListPatterns(ctx)
		return err
	})
	g.Go(func() (err error) {
		prompts, err = h.backend.ListPrompts(ctx)
		return err
	})
	// аналитика и архив необязательны: их ошибки не ломают дашборд
	g.Go(func() error {
		s, err := h.backend.RunsSummary(ctx)
		if err != nil {
			h.logger.Warn("Runs summary unavailable", zap.Error(err))
			return nil
		}
		summary = &s
		return nil
	})
	g.Go(func() error {
		archived = h.archivedRuns(ctx, dashboardArchivedRuns)
		return nil
	})

	data := gin.H{"Error": ""}
	status := http.StatusOK
	if err := g.Wait(); err != nil {
		h.logger.Error("Failed to load dashboard", zap.Error(err))
		data["Error"] = userMessage(err)
		status = http.StatusBadGateway
	}
	data["PatternCount"] = len(patterns)
	data["PromptCount"] = len(models.GroupPrompts(prompts))
	data["Summary"] = summary
	data["Runs"] = h.runs.List()
	data["Archived"] = archived
	h.render(c, status, "dashboard.html", data)
}
