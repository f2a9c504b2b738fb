package client

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

// Backend - HTTP/SSE API бэкенда генерации.
type Backend interface {
	// Patterns
	History(ctx context.Context) ([]models.Pattern, error)
	ListPatterns(ctx context.Context) ([]models.Pattern, error)
	GetPattern(ctx context.Context, id string) (models.Pattern, error)
	GetPatternByWord(ctx context.Context, word string) (models.Pattern, error)
	GenerateWord(ctx context.Context, word string) (models.Pattern, error)
	StreamGenerate(ctx context.Context, word string) (io.ReadCloser, error)
	StreamWord(ctx context.Context, word string) (io.ReadCloser, error)
	ManagePattern(ctx context.Context, id string, action models.ManageAction) error

	// Prompts
	ListPrompts(ctx context.Context) ([]models.Prompt, error)
	GetPrompt(ctx context.Context, slug string) (models.Prompt, error)
	GetPromptVersion(ctx context.Context, id string) (models.Prompt, error)
	CreatePromptVersion(ctx context.Context, slug string, p models.Prompt) (models.Prompt, error)
	UpdatePromptVersion(ctx context.Context, id string, p models.Prompt) (models.Prompt, error)
	ActivatePrompt(ctx context.Context, id, slug string) error

	// Labs
	PlaygroundTest(ctx context.Context, req PlaygroundRequest) (LabExchange, error)
	GenerateBrief(ctx context.Context, req BriefRequest) (LabExchange, error)
	GenerateImage(ctx context.Context, brief string) (LabExchange, error)
	GenerateVoicing(ctx context.Context, req VoicingRequest) (LabExchange, error)
	TestTemplate(ctx context.Context, req TemplateTestRequest) (LabExchange, error)

	// Lineage
	LineageTree(ctx context.Context) (models.LineageTree, error)
	StreamBranch(ctx context.Context, id, branchPoint string) (io.ReadCloser, error)

	// Analytics
	PatternTrace(ctx context.Context, id string) ([]generation.HTTPTrace, error)
	RunsSummary(ctx context.Context) (models.RunsSummary, error)
}

// PlaygroundRequest - тело /api/playground/test.
type PlaygroundRequest struct {
	Type         string             `json:"type"`
	Word         string             `json:"word,omitempty"`
	Template     string             `json:"template,omitempty"`
	SystemPrompt string             `json:"system_prompt,omitempty"`
	Inputs       map[string]string  `json:"inputs,omitempty"`
	Config       *models.ModelConfig `json:"config,omitempty"`
}

// BriefRequest - тело /api/generate-brief.
type BriefRequest struct {
	Word    string `json:"word"`
	Voicing string `json:"voicing"`
	Essence string `json:"essence"`
	Layers  string `json:"layers"`
}

// VoicingRequest - тело /api/generate-voicing.
type VoicingRequest struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
}

// TemplateTestRequest - тело /api/admin/generate.
type TemplateTestRequest struct {
	Template string             `json:"template"`
	Inputs   map[string]string  `json:"inputs"`
	Config   models.ModelConfig `json:"config"`
}

// LabExchange - отправленный запрос, полученный ответ и извлеченный из него результат.
// Лаборатории показывают все три части.
type LabExchange struct {
	Request  json.RawMessage
	Response json.RawMessage
	Output   string
	Duration time.Duration
}
