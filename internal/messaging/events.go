package messaging

import (
	"context"
	"time"
)

// ConsoleEventType - тип события консоли.
type ConsoleEventType string

const (
	EventRunFinished     ConsoleEventType = "run_finished"
	EventPromptSaved     ConsoleEventType = "prompt_saved"
	EventPromptActivated ConsoleEventType = "prompt_activated"
	EventPatternManaged  ConsoleEventType = "pattern_managed"
	EventBranchCreated   ConsoleEventType = "branch_created"
)

// ConsoleEvent публикуется после действий администратора и завершения пакетов.
type ConsoleEvent struct {
	Type       ConsoleEventType `json:"type"`
	RunID      string           `json:"run_id,omitempty"`
	PatternID  string           `json:"pattern_id,omitempty"`
	PromptID   string           `json:"prompt_id,omitempty"`
	Slug       string           `json:"slug,omitempty"`
	Action     string           `json:"action,omitempty"`
	Words      []string         `json:"words,omitempty"`
	Succeeded  int              `json:"succeeded,omitempty"`
	Failed     int              `json:"failed,omitempty"`
	Actor      string           `json:"actor,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// EventPublisher defines the interface for publishing console events.
type EventPublisher interface {
	Publish(ctx context.Context, event ConsoleEvent) error
	Close() error
}

// NopPublisher используется, когда RabbitMQ не настроен.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ConsoleEvent) error { return nil }
func (NopPublisher) Close() error                                { return nil }

var _ EventPublisher = NopPublisher{}
