package models

import (
	"sort"
	"strings"
	"time"
)

// Поля паттерна, которыми оперируют инспектор и действия очистки.
const (
	FieldLayers     = "layers"
	FieldVoicing    = "voicing"
	FieldEssence    = "essence"
	FieldImageBrief = "image_brief"
	FieldImage      = "image_url"
)

// PatternFields перечисляет текстовые поля в порядке конвейера.
var PatternFields = []string{FieldLayers, FieldVoicing, FieldEssence, FieldImageBrief, FieldImage}

// Pattern - каноническое представление результата генерации.
// Все варианты ответов бэкенда приводятся к нему в client.DecodePattern.
type Pattern struct {
	ID           string    `json:"id"`
	Word         string    `json:"word"`
	Layers       string    `json:"layers,omitempty"`
	Voicing      string    `json:"voicing,omitempty"`
	Essence      string    `json:"essence,omitempty"`
	ImageBrief   string    `json:"image_brief,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Field returns the content of a named field.
func (p Pattern) Field(name string) string {
	switch name {
	case FieldLayers:
		return p.Layers
	case FieldVoicing:
		return p.Voicing
	case FieldEssence:
		return p.Essence
	case FieldImageBrief:
		return p.ImageBrief
	case FieldImage:
		return p.ImageURL
	}
	return ""
}

func (p Pattern) HasField(name string) bool {
	return strings.TrimSpace(p.Field(name)) != ""
}

// Thumbnail возвращает превью, а при его отсутствии полное изображение.
func (p Pattern) Thumbnail() string {
	if p.ThumbnailURL != "" {
		return p.ThumbnailURL
	}
	return p.ImageURL
}

// FieldLabel - подпись поля для инспектора.
func FieldLabel(name string) string {
	switch name {
	case FieldLayers:
		return "Layers"
	case FieldVoicing:
		return "Voicing"
	case FieldEssence:
		return "Essence"
	case FieldImageBrief:
		return "Image Brief"
	case FieldImage:
		return "Image"
	}
	return name
}

// FilterPatterns оставляет паттерны, слово которых содержит q (без учета регистра).
func FilterPatterns(patterns []Pattern, q string) []Pattern {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return patterns
	}
	out := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		if strings.Contains(strings.ToLower(p.Word), q) {
			out = append(out, p)
		}
	}
	return out
}

// SortNewestFirst сортирует по created_at по убыванию. Сортировка стабильная.
func SortNewestFirst(patterns []Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].CreatedAt.After(patterns[j].CreatedAt)
	})
}

// WithField returns patterns that have content in the given field.
func WithField(patterns []Pattern, field string) []Pattern {
	var out []Pattern
	for _, p := range patterns {
		if p.HasField(field) {
			out = append(out, p)
		}
	}
	return out
}

// FindPattern ищет паттерн по id или слову.
func FindPattern(patterns []Pattern, key string) (Pattern, bool) {
	for _, p := range patterns {
		if p.ID == key || strings.EqualFold(p.Word, key) {
			return p, true
		}
	}
	return Pattern{}, false
}
