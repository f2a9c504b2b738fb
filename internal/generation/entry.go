package generation

import (
	"encoding/json"
	"time"
)

// Status - состояние одной записи журнала генерации.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Terminal сообщает, что запись больше не меняет статус.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// HTTPTrace - запрос к провайдеру и, после слияния, его ответ.
type HTTPTrace struct {
	ID              string            `json:"id,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	Step            string            `json:"step,omitempty"`
	Method          string            `json:"method,omitempty"`
	URL             string            `json:"url,omitempty"`
	Status          int               `json:"status,omitempty"`
	DurationMS      float64           `json:"duration_ms,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	RequestBody     json.RawMessage   `json:"request_body,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    json.RawMessage   `json:"response_body,omitempty"`
	Error           string            `json:"error,omitempty"`
	Model           string            `json:"model,omitempty"`
	InputTokens     int               `json:"input_tokens,omitempty"`
	OutputTokens    int               `json:"output_tokens,omitempty"`
	Cost            float64           `json:"cost,omitempty"`
}

// Completed сообщает, что ответная половина уже получена.
func (t HTTPTrace) Completed() bool {
	return t.Status != 0 || t.Error != ""
}

// OK is true for 2xx responses.
func (t HTTPTrace) OK() bool {
	return t.Status >= 200 && t.Status < 300
}

// StepDetail - метаданные стадии: какой промпт и модель использовались.
type StepDetail struct {
	Step          string          `json:"step"`
	PromptSlug    string          `json:"prompt_slug,omitempty"`
	PromptVersion int             `json:"prompt_version,omitempty"`
	Model         string          `json:"model,omitempty"`
	Inputs        json.RawMessage `json:"inputs,omitempty"`
	Config        json.RawMessage `json:"config,omitempty"`
}

// SavedEvent - подтверждение записи результата в хранилище бэкенда.
type SavedEvent struct {
	Step  string   `json:"step,omitempty"`
	Table string   `json:"table"`
	RowID string   `json:"row_id,omitempty"`
	URLs  []string `json:"urls,omitempty"`
}

// LogEntry - одна запись журнала пакетного запуска, по одной на слово.
// HTTPTraces, StepDetails и SavedEvents только дополняются.
type LogEntry struct {
	Word           string            `json:"word"`
	Status         Status            `json:"status"`
	Message        string            `json:"message"`
	Step           string            `json:"step,omitempty"`
	PatternID      string            `json:"pattern_id,omitempty"`
	CompletedSteps []string          `json:"completed_steps,omitempty"`
	Result         map[string]string `json:"result,omitempty"`
	Data           json.RawMessage   `json:"data,omitempty"`
	HTTPTraces     []HTTPTrace       `json:"http_traces"`
	StepDetails    []StepDetail      `json:"step_details"`
	SavedEvents    []SavedEvent      `json:"saved_events"`
	StartedAt      time.Time         `json:"started_at,omitempty"`
	FinishedAt     time.Time         `json:"finished_at,omitempty"`
}

// NewLogEntry создает запись в состоянии ожидания.
func NewLogEntry(word string) LogEntry {
	return LogEntry{
		Word:        word,
		Status:      StatusPending,
		Message:     "Waiting...",
		HTTPTraces:  []HTTPTrace{},
		StepDetails: []StepDetail{},
		SavedEvents: []SavedEvent{},
	}
}

// Start переводит запись в processing.
func Start(e LogEntry, at time.Time) LogEntry {
	if e.Status != StatusPending {
		return e
	}
	e.Status = StatusProcessing
	e.Message = "Starting generation..."
	e.StartedAt = at
	return e
}

// Complete завершает запись успехом, если поток закончился без события complete.
func Complete(e LogEntry, at time.Time) LogEntry {
	if e.Status.Terminal() {
		return e
	}
	e.Status = StatusSuccess
	e.Message = "Generation complete"
	e.FinishedAt = at
	return e
}

// Fail переводит запись в error. Уже завершённая запись не меняется.
func Fail(e LogEntry, message string, at time.Time) LogEntry {
	if e.Status.Terminal() {
		return e
	}
	e.Status = StatusError
	e.Message = message
	e.FinishedAt = at
	return e
}

// Duration работы над словом; ноль, пока запись не завершена.
func (e LogEntry) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// TotalTokens sums tokens reported by every trace.
func (e LogEntry) TotalTokens() (in, out int) {
	for _, t := range e.HTTPTraces {
		in += t.InputTokens
		out += t.OutputTokens
	}
	return in, out
}

// TotalCost sums cost reported by every trace.
func (e LogEntry) TotalCost() float64 {
	var c float64
	for _, t := range e.HTTPTraces {
		c += t.Cost
	}
	return c
}
