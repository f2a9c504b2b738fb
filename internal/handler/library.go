package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/messaging"
	"github.com/mbonchek/patterning-web-v2/internal/metrics"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

func inspectParam(c *gin.Context) string {
	field := c.Query("inspect")
	for _, f := range models.PatternFields {
		if f == field {
			return f
		}
	}
	return ""
}

// library - библиотека паттернов админки. История читается в обход кешей.
func (h *Handler) library(c *gin.Context) {
	q := c.Query("q")
	data := gin.H{
		"Query":    q,
		"View":     viewParam(c),
		"Inspect":  inspectParam(c),
		"Fields":   models.PatternFields,
		"Patterns": []models.Pattern{},
		"Selected": (*models.Pattern)(nil),
		"Error":    "",
	}

	patterns, err := h.backend.History(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load library", zap.Error(err))
		data["Error"] = userMessage(err)
		h.render(c, http.StatusBadGateway, "library.html", data)
		return
	}
	models.SortNewestFirst(patterns)
	data["Patterns"] = models.FilterPatterns(patterns, q)
	if key := c.Query("word"); key != "" {
		if p, ok := models.FindPattern(patterns, key); ok {
			data["Selected"] = &p
		}
	}
	h.render(c, http.StatusOK, "library.html", data)
}

func managePath(id string) string {
	return "/admin/library/manage?id=" + url.QueryEscape(id)
}

// managePage показывает доступные действия, а с ?action= - шаг подтверждения.
func (h *Handler) managePage(c *gin.Context) {
	id := c.Query("id")
	p, err := h.backend.GetPattern(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.notFound(c)
			return
		}
		h.fail(c, "/admin/library", "load_pattern", err)
		return
	}

	data := gin.H{"Pattern": p, "Options": models.ManageOptions(p), "Confirm": nil, "Error": ""}
	if raw := c.Query("action"); raw != "" {
		action, err := models.ParseManageAction(raw)
		if err != nil {
			h.fail(c, managePath(id), "manage", err)
			return
		}
		if !action.Allowed(p) {
			h.fail(c, managePath(id), "manage", models.ErrFieldMissing)
			return
		}
		message := "This clears " + models.FieldLabel(action.Field()) + " of “" + p.Word + "”. It cannot be undone."
		if action == models.ActionDeleteAll {
			message = "This deletes “" + p.Word + "” with all its content. It cannot be undone."
		}
		data["Confirm"] = &confirmation{
			Title:   action.Label() + "?",
			Message: message,
			Action:  "/admin/library/manage",
			Fields:  map[string]string{"id": p.ID, "action": string(action)},
			Button:  action.Label(),
			Cancel:  managePath(id),
		}
	}
	h.render(c, http.StatusOK, "manage.html", data)
}

// manageSubmit выполняет подтвержденное действие и возвращает к свежим данным.
func (h *Handler) manageSubmit(c *gin.Context) {
	id := c.PostForm("id")
	back := managePath(id)

	action, err := models.ParseManageAction(c.PostForm("action"))
	if err != nil {
		h.fail(c, back, "manage", err)
		return
	}
	if err := confirmed(c); err != nil {
		h.fail(c, back+"&action="+url.QueryEscape(string(action)), "manage", err)
		return
	}

	ctx := c.Request.Context()
	p, err := h.backend.GetPattern(ctx, id)
	if err != nil {
		h.fail(c, "/admin/library", "load_pattern", err)
		return
	}
	if !action.Allowed(p) {
		h.fail(c, back, "manage", models.ErrFieldMissing)
		return
	}

	err = h.backend.ManagePattern(ctx, p.ID, action)
	metrics.AdminAction(string(action), err)
	if err != nil {
		h.fail(c, back, string(action), err)
		return
	}
	h.logger.Info("Pattern managed", zap.String("pattern_id", p.ID), zap.String("action", string(action)))
	h.publish(c, messaging.ConsoleEvent{Type: messaging.EventPatternManaged, PatternID: p.ID, Action: string(action)})

	if action == models.ActionDeleteAll {
		h.succeed(c, "/admin/library", "Deleted “"+p.Word+"”")
		return
	}
	h.succeed(c, back, action.Label()+": done")
}
