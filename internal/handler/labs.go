package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mbonchek/patterning-web-v2/internal/client"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

const (
	labHistory  = 30
	playColumns = 3
	// промпт колонки Patterning, который Pattern Play загружает из бэкенда
	playPromptSlug = "word_verbal_voicing"
)

// recentPatterns - последние паттерны для выпадающих списков "загрузить из истории".
func (h *Handler) recentPatterns(ctx context.Context) []models.Pattern {
	history, err := h.backend.History(ctx)
	if err != nil {
		h.logger.Warn("Failed to load history for lab", zap.Error(err))
		return nil
	}
	models.SortNewestFirst(history)
	if len(history) > labHistory {
		history = history[:labHistory]
	}
	return history
}

func (h *Handler) briefLab(c *gin.Context) {
	history := h.recentPatterns(c.Request.Context())
	form := client.BriefRequest{Word: c.Query("word")}
	if from := c.Query("from"); from != "" {
		if p, ok := models.FindPattern(history, from); ok {
			form = client.BriefRequest{Word: p.Word, Voicing: p.Voicing, Essence: p.Essence, Layers: p.Layers}
		}
	}
	h.render(c, http.StatusOK, "brief_lab.html", gin.H{"Form": form, "History": history, "Result": nil, "Error": ""})
}

func (h *Handler) briefLabSubmit(c *gin.Context) {
	ctx := c.Request.Context()
	form := client.BriefRequest{
		Word:    strings.TrimSpace(c.PostForm("word")),
		Voicing: c.PostForm("voicing"),
		Essence: c.PostForm("essence"),
		Layers:  c.PostForm("layers"),
	}
	data := gin.H{"Form": form, "History": h.recentPatterns(ctx), "Result": nil, "Error": ""}
	if form.Word == "" {
		data["Error"] = "Word is required"
		h.render(c, http.StatusBadRequest, "brief_lab.html", data)
		return
	}

	res, err := h.backend.GenerateBrief(ctx, form)
	if err != nil {
		h.logger.Warn("Brief lab request failed", zap.String("word", form.Word), zap.Error(err))
		data["Error"] = userMessage(err)
		h.render(c, http.StatusOK, "brief_lab.html", data)
		return
	}
	data["Result"] = &res
	h.render(c, http.StatusOK, "brief_lab.html", data)
}

func (h *Handler) imageLab(c *gin.Context) {
	history := h.recentPatterns(c.Request.Context())
	brief := c.Query("brief")
	if from := c.Query("from"); from != "" {
		if p, ok := models.FindPattern(history, from); ok {
			brief = p.ImageBrief
		}
	}
	h.render(c, http.StatusOK, "image_lab.html", gin.H{"Brief": brief, "History": history, "Result": nil, "Error": ""})
}

func (h *Handler) imageLabSubmit(c *gin.Context) {
	ctx := c.Request.Context()
	brief := strings.TrimSpace(c.PostForm("brief"))
	data := gin.H{"Brief": brief, "History": h.recentPatterns(ctx), "Result": nil, "Error": ""}
	if brief == "" {
		data["Error"] = "Image brief is required"
		h.render(c, http.StatusBadRequest, "image_lab.html", data)
		return
	}

	res, err := h.backend.GenerateImage(ctx, brief)
	if err != nil {
		h.logger.Warn("Image lab request failed", zap.Error(err))
		data["Error"] = userMessage(err)
		h.render(c, http.StatusOK, "image_lab.html", data)
		return
	}
	data["Result"] = &res
	h.render(c, http.StatusOK, "image_lab.html", data)
}

// PlayColumn - один вариант промпта в Pattern Play.
type PlayColumn struct {
	Title        string
	Subtitle     string
	SystemPrompt string
	UserPrompt   string
	// UseLayers - подставлять ли {{layers}} в user prompt.
	UseLayers bool
	// LayersToggle - может ли пользователь менять UseLayers (только Custom).
	LayersToggle bool
	Result       *client.LabExchange
	Error        string
}

const poeticSystemPrompt = `You are a poetic voice that reveals the essence of words through evocative language.

Your task is to create a "voicing" - a poetic expression that captures the word's meaning, feeling, and resonance.

Guidelines:
- Use vivid, sensory language
- Embrace metaphor and imagery
- Capture emotional and experiential dimensions
- Be concise but evocative (2-4 sentences)
- Let the language breathe and resonate`

const poeticUserPrompt = "Create a poetic voicing for the word: {{word}}"

// playColumnsLayout: Patterning всегда с layers, PatternPlay всегда без, Custom по флажку.
func playColumnsLayout() []PlayColumn {
	return []PlayColumn{
		{Title: "Current Patterning", Subtitle: "With layers, structured approach", UseLayers: true},
		{Title: "PatternPlay", Subtitle: "No layers, poetic approach"},
		{Title: "Custom", Subtitle: "Your own prompt", LayersToggle: true},
	}
}

// playUserPrompt подставляет {{word}} всегда, а {{layers}} только если колонка просит и layers заданы.
// System prompt уходит без подстановок.
func playUserPrompt(tmpl, word, layers string, useLayers bool) string {
	vars := map[string]string{"word": word}
	if useLayers && layers != "" {
		vars["layers"] = layers
	}
	return models.RenderTemplate(tmpl, vars)
}

func (h *Handler) patternPlay(c *gin.Context) {
	columns := playColumnsLayout()
	data := gin.H{"Word": c.Query("word"), "Layers": "", "Columns": columns, "Error": ""}

	if c.Query("load") == "prompts" {
		p, err := h.backend.GetPrompt(c.Request.Context(), playPromptSlug)
		if err != nil {
			h.logger.Warn("Failed to load live prompt", zap.String("slug", playPromptSlug), zap.Error(err))
			data["Error"] = userMessage(err)
		} else {
			columns[0].SystemPrompt = p.SystemPrompt
			columns[0].UserPrompt = p.Template
		}
		for _, i := range []int{1, 2} {
			columns[i].SystemPrompt = poeticSystemPrompt
			columns[i].UserPrompt = poeticUserPrompt
		}
	}
	h.render(c, http.StatusOK, "pattern_play.html", data)
}

// patternPlaySubmit запускает все заполненные колонки параллельно.
// Ошибка одной колонки не отменяет остальные.
func (h *Handler) patternPlaySubmit(c *gin.Context) {
	word := strings.TrimSpace(c.PostForm("word"))
	layers := c.PostForm("layers")

	columns := playColumnsLayout()
	for i := range columns {
		n := strconv.Itoa(i)
		columns[i].SystemPrompt = c.PostForm("system_" + n)
		columns[i].UserPrompt = c.PostForm("user_" + n)
		if columns[i].LayersToggle {
			columns[i].UseLayers = c.PostForm("use_layers_"+n) == "on"
		}
	}
	data := gin.H{"Word": word, "Layers": layers, "Columns": columns, "Error": ""}
	if word == "" {
		data["Error"] = "Word is required"
		h.render(c, http.StatusBadRequest, "pattern_play.html", data)
		return
	}

	var g errgroup.Group
	g.SetLimit(playColumns)
	ctx := c.Request.Context()
	for i := range columns {
		col := &columns[i]
		if strings.TrimSpace(col.UserPrompt) == "" {
			continue
		}
		g.Go(func() error {
			res, err := h.backend.GenerateVoicing(ctx, client.VoicingRequest{
				SystemPrompt: col.SystemPrompt,
				UserPrompt:   playUserPrompt(col.UserPrompt, word, layers, col.UseLayers),
			})
			if err != nil {
				col.Error = userMessage(err)
				return fmt.Errorf("column %d: %w", i+1, err)
			}
			col.Result = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.logger.Warn("Pattern Play variant failed", zap.String("word", word), zap.Error(err))
	}
	h.render(c, http.StatusOK, "pattern_play.html", data)
}
