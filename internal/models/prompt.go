package models

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ModelConfig - параметры модели, с которыми запускается промпт.
type ModelConfig struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
	MaxTokens   int     `json:"max_tokens"`
}

// DefaultModelConfig используется для новых версий и версий без настроек.
var DefaultModelConfig = ModelConfig{
	Temperature: 0.7,
	TopP:        0.95,
	TopK:        40,
	MaxTokens:   4096,
}

// Validate проверяет диапазоны параметров.
func (c ModelConfig) Validate() error {
	var problems []string
	if c.Temperature < 0 || c.Temperature > 2 {
		problems = append(problems, "temperature must be between 0 and 2")
	}
	if c.TopP < 0 || c.TopP > 1 {
		problems = append(problems, "top_p must be between 0 and 1")
	}
	if c.TopK < 0 {
		problems = append(problems, "top_k must not be negative")
	}
	if c.MaxTokens <= 0 {
		problems = append(problems, "max_tokens must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// Prompt - одна версия шаблона промпта.
type Prompt struct {
	ID             string    `json:"id,omitempty"`
	Slug           string    `json:"slug"`
	Version        int       `json:"version"`
	VersionLabel   string    `json:"version_label,omitempty"`
	Template       string    `json:"template"`
	SystemPrompt   string    `json:"system_prompt,omitempty"`
	IsActive       bool      `json:"is_active"`
	Description    string    `json:"description,omitempty"`
	InputVariables []string  `json:"input_variables,omitempty"`
	Temperature    *float64  `json:"temperature,omitempty"`
	TopP           *float64  `json:"top_p,omitempty"`
	TopK           *int      `json:"top_k,omitempty"`
	MaxTokens      *int      `json:"max_tokens,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// NewPromptDraft - заготовка для /admin/prompts/new.
func NewPromptDraft() Prompt {
	p := Prompt{
		Slug:           "new-prompt",
		Version:        1,
		InputVariables: []string{"word"},
	}
	p.SetConfig(DefaultModelConfig)
	return p
}

type legacyDescription struct {
	Description string       `json:"description"`
	Config      *ModelConfig `json:"config"`
}

const legacyDescriptionPrefix = "JSON:"

// ParseDescription разбирает устаревший формат "JSON:{description, config}".
// Обычное описание возвращается как есть с nil-конфигом.
func (p Prompt) ParseDescription() (string, *ModelConfig) {
	if !strings.HasPrefix(p.Description, legacyDescriptionPrefix) {
		return p.Description, nil
	}
	var legacy legacyDescription
	if err := json.Unmarshal([]byte(strings.TrimPrefix(p.Description, legacyDescriptionPrefix)), &legacy); err != nil {
		return p.Description, nil
	}
	return legacy.Description, legacy.Config
}

// Config собирает параметры: явные поля версии, затем конфиг из описания, затем значения по умолчанию.
func (p Prompt) Config() ModelConfig {
	cfg := DefaultModelConfig
	if _, legacy := p.ParseDescription(); legacy != nil {
		cfg = *legacy
	}
	if p.Temperature != nil {
		cfg.Temperature = *p.Temperature
	}
	if p.TopP != nil {
		cfg.TopP = *p.TopP
	}
	if p.TopK != nil {
		cfg.TopK = *p.TopK
	}
	if p.MaxTokens != nil {
		cfg.MaxTokens = *p.MaxTokens
	}
	return cfg
}

// SetConfig записывает параметры в явные поля версии.
func (p *Prompt) SetConfig(cfg ModelConfig) {
	p.Temperature = &cfg.Temperature
	p.TopP = &cfg.TopP
	p.TopK = &cfg.TopK
	p.MaxTokens = &cfg.MaxTokens
}

// VariantTag кодирует версию и параметры, например "v3.t70.p95.k40.n4096".
func (p Prompt) VariantTag() string {
	cfg := p.Config()
	return fmt.Sprintf("v%d.t%d.p%d.k%d.n%d",
		p.Version,
		int(math.Round(cfg.Temperature*100)),
		int(math.Round(cfg.TopP*100)),
		cfg.TopK,
		cfg.MaxTokens,
	)
}

// PromptGroup - все версии одного slug.
type PromptGroup struct {
	Slug    string
	Active  Prompt
	History []Prompt
}

// Versions returns the total number of versions in the group.
func (g PromptGroup) Versions() int {
	return len(g.History) + 1
}

// Порядок известных slug'ов в списке промптов.
var promptSlugOrder = []string{"system", "layers", "voicing", "essence", "image_brief", "image"}

// GroupPrompts группирует версии по slug. Известные slug'и идут первыми в порядке конвейера,
// остальные по алфавиту. Активная версия - первая с is_active, иначе первая в списке.
// История - остальные версии, новые сверху.
func GroupPrompts(prompts []Prompt) []PromptGroup {
	bySlug := make(map[string][]Prompt)
	var slugs []string
	for _, p := range prompts {
		if _, seen := bySlug[p.Slug]; !seen {
			slugs = append(slugs, p.Slug)
		}
		bySlug[p.Slug] = append(bySlug[p.Slug], p)
	}

	rank := func(slug string) int {
		for i, s := range promptSlugOrder {
			if s == slug {
				return i
			}
		}
		return len(promptSlugOrder)
	}
	sort.SliceStable(slugs, func(i, j int) bool {
		ri, rj := rank(slugs[i]), rank(slugs[j])
		if ri != rj {
			return ri < rj
		}
		return slugs[i] < slugs[j]
	})

	groups := make([]PromptGroup, 0, len(slugs))
	for _, slug := range slugs {
		versions := bySlug[slug]
		activeIdx := 0
		for i, v := range versions {
			if v.IsActive {
				activeIdx = i
				break
			}
		}
		history := make([]Prompt, 0, len(versions)-1)
		for i, v := range versions {
			if i != activeIdx {
				history = append(history, v)
			}
		}
		sort.SliceStable(history, func(i, j int) bool {
			return history[i].CreatedAt.After(history[j].CreatedAt)
		})
		groups = append(groups, PromptGroup{Slug: slug, Active: versions[activeIdx], History: history})
	}
	return groups
}

// NextVersion возвращает номер следующей версии slug'а (1 для нового slug'а).
func NextVersion(prompts []Prompt, slug string) int {
	latest := 0
	for _, p := range prompts {
		if p.Slug == slug && p.Version > latest {
			latest = p.Version
		}
	}
	return latest + 1
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// TemplateVariables извлекает имена плейсхолдеров {{name}} в порядке появления.
func TemplateVariables(template string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// RenderTemplate подставляет значения в {{name}}. Неизвестные плейсхолдеры остаются как есть.
func RenderTemplate(template string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// FillTestInputs подбирает тестовые значения переменных промпта из существующего паттерна.
func FillTestInputs(p Pattern, variables []string) map[string]string {
	out := make(map[string]string, len(variables))
	for _, v := range variables {
		switch v {
		case "word", "input":
			out[v] = p.Word
		case "voicing", "word_voicing", "text":
			out[v] = p.Voicing
		case "essence", "description":
			out[v] = p.Essence
		case "layers":
			out[v] = p.Layers
		case "image_brief", "brief":
			out[v] = p.ImageBrief
		}
	}
	return out
}
