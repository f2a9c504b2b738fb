package client

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

// Разные версии бэкенда отдают один и тот же паттерн в разной форме:
// плоско или под "pattern", с именами полей v1 или v2. Здесь всё приводится
// к models.Pattern, и больше нигде имена полей бэкенда не угадываются.

var errInvalidJSON = errors.New("invalid JSON in backend response")

var patternAliases = map[string][]string{
	"id":            {"id", "pattern_id", "_id"},
	"word":          {"word", "word_seeds.text", "word_seeds.0.text", "seed.text", "word_seed.text"},
	"layers":        {"layers", "verbal_layer", "verbal_layers", "layer"},
	"voicing":       {"voicing", "verbal_voicing", "word_voicing"},
	"essence":       {"essence", "verbal_essence"},
	"image_brief":   {"image_brief", "visual_brief", "brief", "visual_essence"},
	"image_url":     {"image_url", "visual_image_url", "image", "images.0.url"},
	"thumbnail_url": {"thumbnail_url", "thumbnail", "thumb_url"},
	"created_at":    {"created_at", "createdAt", "generated_at"},
}

// DecodePattern maps any known backend shape of a pattern to models.Pattern.
func DecodePattern(body []byte) (models.Pattern, error) {
	if !gjson.ValidBytes(body) {
		return models.Pattern{}, errInvalidJSON
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return models.Pattern{}, fmt.Errorf("pattern response is not an object")
	}
	return patternFromResult(root), nil
}

func patternFromResult(root gjson.Result) models.Pattern {
	// вложенные формы: {"pattern": {...}} и {"data": {...}}
	scopes := []gjson.Result{root}
	for _, key := range []string{"pattern", "data"} {
		if nested := root.Get(key); nested.IsObject() {
			scopes = append([]gjson.Result{nested}, scopes...)
		}
	}

	field := func(name string) gjson.Result {
		for _, scope := range scopes {
			for _, path := range patternAliases[name] {
				if r := scope.Get(path); r.Exists() && r.Type != gjson.Null {
					return r
				}
			}
		}
		return gjson.Result{}
	}

	p := models.Pattern{
		ID:           field("id").String(),
		Word:         textValue(field("word")),
		Layers:       textValue(field("layers")),
		Voicing:      textValue(field("voicing")),
		Essence:      textValue(field("essence")),
		ImageBrief:   textValue(field("image_brief")),
		ImageURL:     urlValue(field("image_url")),
		ThumbnailURL: urlValue(field("thumbnail_url")),
		CreatedAt:    parseTime(field("created_at").String()),
	}
	return p
}

// textValue превращает поле в текст: строку как есть, {"content": ...} по content,
// массив слоев склеивает через пустую строку.
func textValue(r gjson.Result) string {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return ""
	case r.IsObject():
		for _, k := range []string{"content", "text", "value"} {
			if v := r.Get(k); v.Exists() {
				return textValue(v)
			}
		}
		return r.Raw
	case r.IsArray():
		var parts []string
		r.ForEach(func(_, v gjson.Result) bool {
			if s := strings.TrimSpace(textValue(v)); s != "" {
				parts = append(parts, s)
			}
			return true
		})
		return strings.Join(parts, "\n\n")
	default:
		return r.String()
	}
}

func urlValue(r gjson.Result) string {
	if r.IsObject() {
		return r.Get("url").String()
	}
	return r.String()
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// listOf находит массив в корне ответа или под одним из ключей.
func listOf(body []byte, keys ...string) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errInvalidJSON
	}
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return root, nil
	}
	for _, k := range keys {
		if r := root.Get(k); r.IsArray() {
			return r, nil
		}
	}
	if root.IsObject() {
		// пустой объект или объект без списка считаем пустым списком
		return gjson.Parse("[]"), nil
	}
	return gjson.Result{}, fmt.Errorf("unexpected list response")
}

// DecodePatternList accepts a bare array or an object wrapping it.
func DecodePatternList(body []byte) ([]models.Pattern, error) {
	list, err := listOf(body, "patterns", "history", "data", "items")
	if err != nil {
		return nil, err
	}
	out := []models.Pattern{}
	list.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			out = append(out, patternFromResult(v))
		}
		return true
	})
	return out, nil
}

func promptFromResult(r gjson.Result) models.Prompt {
	if nested := r.Get("prompt"); nested.IsObject() {
		r = nested
	}
	p := models.Prompt{
		ID:           r.Get("id").String(),
		Slug:         r.Get("slug").String(),
		Version:      int(r.Get("version").Int()),
		VersionLabel: r.Get("version_label").String(),
		Template:     firstString(r, "template", "user_prompt", "content"),
		SystemPrompt: r.Get("system_prompt").String(),
		IsActive:     r.Get("is_active").Bool(),
		Description:  r.Get("description").String(),
		CreatedAt:    parseTime(r.Get("created_at").String()),
	}
	vars := r.Get("input_variables")
	if vars.Type == gjson.String && gjson.Valid(vars.String()) {
		// часть версий хранит список переменных JSON-строкой
		vars = gjson.Parse(vars.String())
	}
	vars.ForEach(func(_, v gjson.Result) bool {
		p.InputVariables = append(p.InputVariables, v.String())
		return true
	})
	if v := r.Get("temperature"); v.Exists() && v.Type != gjson.Null {
		f := v.Float()
		p.Temperature = &f
	}
	if v := r.Get("top_p"); v.Exists() && v.Type != gjson.Null {
		f := v.Float()
		p.TopP = &f
	}
	if v := r.Get("top_k"); v.Exists() && v.Type != gjson.Null {
		n := int(v.Int())
		p.TopK = &n
	}
	if v := r.Get("max_tokens"); v.Exists() && v.Type != gjson.Null {
		n := int(v.Int())
		p.MaxTokens = &n
	}
	return p
}

func firstString(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.Type != gjson.Null {
			return v.String()
		}
	}
	return ""
}

// DecodePrompt decodes one prompt version.
func DecodePrompt(body []byte) (models.Prompt, error) {
	if !gjson.ValidBytes(body) {
		return models.Prompt{}, errInvalidJSON
	}
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		// GET /api/prompts/:slug на старых бэкендах отдает все версии
		var active, firstPrompt *models.Prompt
		root.ForEach(func(_, v gjson.Result) bool {
			p := promptFromResult(v)
			if firstPrompt == nil {
				firstPrompt = &p
			}
			if p.IsActive && active == nil {
				active = &p
			}
			return true
		})
		switch {
		case active != nil:
			return *active, nil
		case firstPrompt != nil:
			return *firstPrompt, nil
		default:
			return models.Prompt{}, models.ErrNotFound
		}
	}
	return promptFromResult(root), nil
}

func DecodePromptList(body []byte) ([]models.Prompt, error) {
	list, err := listOf(body, "prompts", "data", "items")
	if err != nil {
		return nil, err
	}
	out := []models.Prompt{}
	list.ForEach(func(_, v gjson.Result) bool {
		out = append(out, promptFromResult(v))
		return true
	})
	return out, nil
}

func lineageNodeFromResult(r gjson.Result) *models.LineageNode {
	n := &models.LineageNode{
		ID:              r.Get("id").String(),
		PatternID:       r.Get("pattern_id").String(),
		PatternRef:      r.Get("pattern_ref").String(),
		SeedID:          r.Get("seed_id").String(),
		ParentPatternID: r.Get("parent_pattern_id").String(),
		BranchPoint:     r.Get("branch_point").String(),
		Generation:      int(r.Get("generation").Int()),
		BranchCount:     int(r.Get("branch_count").Int()),
		UserLikes:       int(r.Get("user_likes").Int()),
		Word:            firstString(r, "word_seeds.text", "word", "seed.text"),
		CreatedAt:       parseTime(r.Get("created_at").String()),
	}
	r.Get("children").ForEach(func(_, c gjson.Result) bool {
		n.Children = append(n.Children, lineageNodeFromResult(c))
		return true
	})
	return n
}

// DecodeLineageTree - ответ {roots, total_branches, max_generation}.
func DecodeLineageTree(body []byte) (models.LineageTree, error) {
	if !gjson.ValidBytes(body) {
		return models.LineageTree{}, errInvalidJSON
	}
	root := gjson.ParseBytes(body)
	roots := root.Get("roots")
	if root.IsArray() {
		roots = root
	}
	tree := models.LineageTree{
		TotalBranches: int(root.Get("total_branches").Int()),
		MaxGeneration: int(root.Get("max_generation").Int()),
	}
	roots.ForEach(func(_, v gjson.Result) bool {
		tree.Roots = append(tree.Roots, lineageNodeFromResult(v))
		return true
	})
	return tree, nil
}

// DecodeTraces читает сохраненную трассу паттерна.
func DecodeTraces(body []byte) ([]generation.HTTPTrace, error) {
	list, err := listOf(body, "traces", "http_traces", "trace.http_traces", "trace")
	if err != nil {
		return nil, err
	}
	out := []generation.HTTPTrace{}
	list.ForEach(func(_, v gjson.Result) bool {
		out = append(out, generation.ParseTrace(v, time.Time{}))
		return true
	})
	return out, nil
}

func DecodeRunsSummary(body []byte) (models.RunsSummary, error) {
	if !gjson.ValidBytes(body) {
		return models.RunsSummary{}, errInvalidJSON
	}
	root := gjson.ParseBytes(body)
	if nested := root.Get("summary"); nested.IsObject() {
		root = nested
	}
	num := func(keys ...string) gjson.Result {
		for _, k := range keys {
			if v := root.Get(k); v.Exists() {
				return v
			}
		}
		return gjson.Result{}
	}
	s := models.RunsSummary{
		TotalRuns:      int(num("total_runs", "total", "runs").Int()),
		SuccessfulRuns: int(num("successful_runs", "success_count", "successful").Int()),
		FailedRuns:     int(num("failed_runs", "error_count", "failed").Int()),
		AvgDurationMS:  num("avg_duration_ms", "average_duration_ms", "avg_duration").Float(),
		TotalTokens:    int(num("total_tokens", "tokens").Int()),
		TotalCost:      num("total_cost", "cost", "total_cost_usd").Float(),
	}
	if by := root.Get("by_step"); by.IsObject() {
		s.ByStep = map[string]float64{}
		by.ForEach(func(k, v gjson.Result) bool {
			if v.IsObject() {
				s.ByStep[k.String()] = v.Get("avg_duration_ms").Float()
			} else {
				s.ByStep[k.String()] = v.Float()
			}
			return true
		})
	}
	return s, nil
}
