package generation

import "strings"

// Step - стадия конвейера генерации.
type Step struct {
	Name  string // каноническое имя (v2)
	Code  string // короткий код для ветвления
	Label string
}

// Pipeline перечисляет стадии в порядке выполнения.
var Pipeline = []Step{
	{Name: "seed", Code: "seed", Label: "Seed"},
	{Name: "verbal_layer", Code: "vely", Label: "Verbal Layer"},
	{Name: "verbal_voicing", Code: "vevc", Label: "Voicing"},
	{Name: "verbal_essence", Code: "vees", Label: "Verbal Essence"},
	{Name: "visual_layer", Code: "vily", Label: "Visual Layer"},
	{Name: "visual_brief", Code: "vies", Label: "Visual Essence"},
	{Name: "image", Code: "viim", Label: "Image"},
}

// legacy step names -> canonical
var stepAliases = map[string]string{
	"layers":         "verbal_layer",
	"layer":          "verbal_layer",
	"voicing":        "verbal_voicing",
	"word_voicing":   "verbal_voicing",
	"essence":        "verbal_essence",
	"image_brief":    "visual_brief",
	"brief":          "visual_brief",
	"visual_essence": "visual_brief",
	"image_url":      "image",
}

// CanonicalStep приводит имя стадии любого бэкенда к каноническому.
// Неизвестные имена возвращаются как есть.
func CanonicalStep(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if c, ok := stepAliases[n]; ok {
		return c
	}
	return n
}

// StepByName ищет стадию по каноническому или устаревшему имени.
func StepByName(name string) (Step, bool) {
	c := CanonicalStep(name)
	for _, s := range Pipeline {
		if s.Name == c {
			return s, true
		}
	}
	return Step{}, false
}

// StepByCode ищет стадию по коду ветвления (vely, vevc, ...).
func StepByCode(code string) (Step, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, s := range Pipeline {
		if s.Code == code {
			return s, true
		}
	}
	return Step{}, false
}

// StepLabel returns a display label, falling back to the raw name.
func StepLabel(name string) string {
	if s, ok := StepByName(name); ok {
		return s.Label
	}
	return name
}
