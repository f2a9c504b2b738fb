package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/client"
	"github.com/mbonchek/patterning-web-v2/internal/messaging"
	"github.com/mbonchek/patterning-web-v2/internal/metrics"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

const testDataPatterns = 20

func promptPath(id string) string {
	return "/admin/prompts/" + url.PathEscape(id)
}

func (h *Handler) prompts(c *gin.Context) {
	h.renderPrompts(c, nil)
}

func (h *Handler) renderPrompts(c *gin.Context, confirm *confirmation) {
	data := gin.H{"Groups": []models.PromptGroup{}, "Confirm": confirm, "Error": ""}
	all, err := h.backend.ListPrompts(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load prompts", zap.Error(err))
		data["Error"] = userMessage(err)
		h.render(c, http.StatusBadGateway, "prompts.html", data)
		return
	}
	data["Groups"] = models.GroupPrompts(all)
	h.render(c, http.StatusOK, "prompts.html", data)
}

// activateConfirm - шаг подтверждения перед выводом версии в live.
func (h *Handler) activateConfirm(c *gin.Context) {
	id := c.Param("id")
	p, err := h.backend.GetPromptVersion(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "/admin/prompts", "load_prompt", err)
		return
	}
	h.renderPrompts(c, &confirmation{
		Title:   fmt.Sprintf("Make %s v%d live?", p.Slug, p.Version),
		Message: "Every new generation will use this version of the prompt.",
		Action:  promptPath(id) + "/activate",
		Fields:  map[string]string{"slug": p.Slug},
		Button:  "Make live",
		Cancel:  "/admin/prompts",
	})
}

func (h *Handler) activatePrompt(c *gin.Context) {
	id := c.Param("id")
	slug := c.PostForm("slug")
	if err := confirmed(c); err != nil {
		h.fail(c, promptPath(id)+"/activate", "activate_prompt", err)
		return
	}
	err := h.backend.ActivatePrompt(c.Request.Context(), id, slug)
	metrics.AdminAction("activate_prompt", err)
	if err != nil {
		h.fail(c, "/admin/prompts", "activate_prompt", err)
		return
	}
	h.logger.Info("Prompt activated", zap.String("prompt_id", id), zap.String("slug", slug))
	h.publish(c, messaging.ConsoleEvent{Type: messaging.EventPromptActivated, PromptID: id, Slug: slug})
	h.succeed(c, "/admin/prompts", slug+" is live")
}

// promptEditor собирает данные страницы редактора.
type promptEditor struct {
	prompt     models.Prompt
	isNew      bool
	all        []models.Prompt
	testInputs map[string]string
	result     *client.LabExchange
	testErr    string
	err        string
}

func (h *Handler) renderEditor(c *gin.Context, status int, e promptEditor) {
	description, _ := e.prompt.ParseDescription()
	vars := promptVariables(e.prompt)
	if e.testInputs == nil {
		e.testInputs = map[string]string{}
	}

	var recent []models.Pattern
	if !e.isNew {
		history, err := h.backend.History(c.Request.Context())
		if err != nil {
			h.logger.Warn("Failed to load patterns for test data", zap.Error(err))
		}
		models.SortNewestFirst(history)
		if len(history) > testDataPatterns {
			history = history[:testDataPatterns]
		}
		recent = history
		if from := c.Query("from"); from != "" {
			if p, ok := models.FindPattern(history, from); ok {
				for k, v := range models.FillTestInputs(p, vars) {
					e.testInputs[k] = v
				}
			}
		}
	}

	var result any
	if e.result != nil {
		result = e.result
	}
	h.render(c, status, "prompt_edit.html", gin.H{
		"Prompt":      e.prompt,
		"Description": description,
		"Config":      e.prompt.Config(),
		"IsNew":       e.isNew,
		"NextVersion": models.NextVersion(e.all, e.prompt.Slug),
		"Variables":   vars,
		"Tokens":      h.tokens.Count(e.prompt.SystemPrompt + "\n" + e.prompt.Template),
		"Patterns":    recent,
		"TestInputs":  e.testInputs,
		"TestResult":  result,
		"TestError":   e.testErr,
		"Confirm":     nil,
		"Error":       e.err,
	})
}

// promptVariables - объявленные переменные и плейсхолдеры шаблона без повторов.
func promptVariables(p models.Prompt) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range append(append([]string{}, p.InputVariables...), models.TemplateVariables(p.Template)...) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func (h *Handler) newPrompt(c *gin.Context) {
	h.renderEditor(c, http.StatusOK, promptEditor{prompt: models.NewPromptDraft(), isNew: true})
}

func (h *Handler) editPrompt(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.backend.GetPromptVersion(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.notFound(c)
			return
		}
		h.fail(c, "/admin/prompts", "load_prompt", err)
		return
	}
	all, err := h.backend.ListPrompts(ctx)
	if err != nil {
		h.logger.Warn("Failed to load prompt versions", zap.Error(err))
	}
	h.renderEditor(c, http.StatusOK, promptEditor{prompt: p, all: all})
}

// parsePromptForm читает поля редактора поверх base.
func parsePromptForm(c *gin.Context, base models.Prompt) (models.Prompt, error) {
	p := base
	if slug := strings.TrimSpace(c.PostForm("slug")); slug != "" {
		p.Slug = slug
	}
	p.VersionLabel = strings.TrimSpace(c.PostForm("version_label"))
	p.Description = strings.TrimSpace(c.PostForm("description"))
	p.SystemPrompt = c.PostForm("system_prompt")
	p.Template = c.PostForm("template")

	cfg := base.Config()
	var problems []string
	parseFloat := func(name string, dst *float64) {
		if raw := strings.TrimSpace(c.PostForm(name)); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				problems = append(problems, name+" is not a number")
				return
			}
			*dst = v
		}
	}
	parseInt := func(name string, dst *int) {
		if raw := strings.TrimSpace(c.PostForm(name)); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				problems = append(problems, name+" is not an integer")
				return
			}
			*dst = v
		}
	}
	parseFloat("temperature", &cfg.Temperature)
	parseFloat("top_p", &cfg.TopP)
	parseInt("top_k", &cfg.TopK)
	parseInt("max_tokens", &cfg.MaxTokens)
	if len(problems) > 0 {
		return p, fmt.Errorf("%w: %s", models.ErrInvalidInput, strings.Join(problems, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return p, err
	}
	p.SetConfig(cfg)

	if p.Slug == "" {
		return p, fmt.Errorf("%w: slug is required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(p.Template) == "" {
		return p, fmt.Errorf("%w: template is required", models.ErrInvalidInput)
	}
	p.InputVariables = promptVariables(models.Prompt{InputVariables: base.InputVariables, Template: p.Template})
	return p, nil
}

func (h *Handler) createPrompt(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := parsePromptForm(c, models.NewPromptDraft())
	if err != nil {
		h.renderEditor(c, http.StatusBadRequest, promptEditor{prompt: p, isNew: true, err: userMessage(err)})
		return
	}
	all, err := h.backend.ListPrompts(ctx)
	if err != nil {
		h.renderEditor(c, http.StatusBadGateway, promptEditor{prompt: p, isNew: true, err: userMessage(err)})
		return
	}
	p.ID = ""
	p.IsActive = false
	p.Version = models.NextVersion(all, p.Slug)

	created, err := h.backend.CreatePromptVersion(ctx, p.Slug, p)
	metrics.AdminAction("create_prompt", err)
	if err != nil {
		h.logger.Error("Failed to create prompt", zap.String("slug", p.Slug), zap.Error(err))
		h.renderEditor(c, http.StatusBadGateway, promptEditor{prompt: p, isNew: true, all: all, err: userMessage(err)})
		return
	}
	h.publish(c, messaging.ConsoleEvent{Type: messaging.EventPromptSaved, PromptID: created.ID, Slug: p.Slug})
	h.succeedToPrompt(c, created, fmt.Sprintf("Created %s v%d", p.Slug, p.Version))
}

// savePrompt сохраняет изменения новой версией, а с mode=update правит текущую.
func (h *Handler) savePrompt(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	base, err := h.backend.GetPromptVersion(ctx, id)
	if err != nil {
		h.fail(c, "/admin/prompts", "load_prompt", err)
		return
	}
	all, err := h.backend.ListPrompts(ctx)
	if err != nil {
		h.fail(c, promptPath(id), "list_prompts", err)
		return
	}

	p, err := parsePromptForm(c, base)
	p.Slug = base.Slug
	if err != nil {
		h.renderEditor(c, http.StatusBadRequest, promptEditor{prompt: p, all: all, err: userMessage(err)})
		return
	}

	if c.PostForm("mode") == "update" {
		updated, err := h.backend.UpdatePromptVersion(ctx, id, p)
		metrics.AdminAction("update_prompt", err)
		if err != nil {
			h.renderEditor(c, http.StatusBadGateway, promptEditor{prompt: p, all: all, err: userMessage(err)})
			return
		}
		if updated.ID == "" {
			updated.ID = id
		}
		h.publish(c, messaging.ConsoleEvent{Type: messaging.EventPromptSaved, PromptID: updated.ID, Slug: p.Slug})
		h.succeedToPrompt(c, updated, fmt.Sprintf("Updated %s v%d", p.Slug, base.Version))
		return
	}

	p.ID = ""
	p.IsActive = false
	p.Version = models.NextVersion(all, p.Slug)
	created, err := h.backend.CreatePromptVersion(ctx, p.Slug, p)
	metrics.AdminAction("create_prompt", err)
	if err != nil {
		h.logger.Error("Failed to save prompt version", zap.String("slug", p.Slug), zap.Error(err))
		h.renderEditor(c, http.StatusBadGateway, promptEditor{prompt: p, all: all, err: userMessage(err)})
		return
	}
	h.logger.Info("Prompt version saved", zap.String("slug", p.Slug), zap.Int("version", p.Version))
	h.publish(c, messaging.ConsoleEvent{Type: messaging.EventPromptSaved, PromptID: created.ID, Slug: p.Slug})
	h.succeedToPrompt(c, created, fmt.Sprintf("Saved %s v%d", p.Slug, p.Version))
}

func (h *Handler) succeedToPrompt(c *gin.Context, p models.Prompt, message string) {
	if p.ID == "" {
		h.succeed(c, "/admin/prompts", message)
		return
	}
	h.succeed(c, promptPath(p.ID), message)
}

// testPrompt запускает шаблон версии с введенными значениями переменных.
func (h *Handler) testPrompt(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.backend.GetPromptVersion(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, "/admin/prompts", "load_prompt", err)
		return
	}
	inputs := map[string]string{}
	for _, v := range promptVariables(p) {
		inputs[v] = c.PostForm("var_" + v)
	}

	e := promptEditor{prompt: p, testInputs: inputs}
	if e.all, err = h.backend.ListPrompts(ctx); err != nil {
		h.logger.Warn("Failed to load prompt versions", zap.Error(err))
	}
	res, err := h.backend.TestTemplate(ctx, client.TemplateTestRequest{
		Template: p.Template,
		Inputs:   inputs,
		Config:   p.Config(),
	})
	if err != nil {
		h.logger.Warn("Prompt test failed", zap.String("prompt_id", p.ID), zap.Error(err))
		e.testErr = userMessage(err)
	} else {
		e.result = &res
	}
	h.renderEditor(c, http.StatusOK, e)
}
