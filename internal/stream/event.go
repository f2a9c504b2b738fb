package stream

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// Дискриминаторы событий генерации. Старые бэкенды кладут их в поле status, новые в type.
const (
	KindStep       = "step"
	KindProgress   = "progress"
	KindStepDetail = "step_detail"
	KindSaved      = "saved"
	KindHTTPTrace  = "http_trace"
	KindSuccess    = "success"
	KindComplete   = "complete"
	KindError      = "error"
)

// DefaultErrorMessage используется, когда событие ошибки не несёт ни message, ни error.
const DefaultErrorMessage = "unknown stream error"

var errNotObject = errors.New("event payload is not a JSON object")

// Event - одна запись `data: <json>` из потока.
type Event struct {
	Type      string
	Status    string
	Step      string
	Message   string
	Error     string
	PatternID string
	Data      json.RawMessage

	// Raw хранит исходный JSON целиком.
	Raw json.RawMessage
}

// ParseEvent разбирает JSON-объект одной строки потока.
// Скалярные поля читаются через gjson, поэтому pattern_id может прийти и числом, и строкой.
func ParseEvent(payload []byte) (Event, error) {
	if !gjson.ValidBytes(payload) {
		return Event{}, errors.New("invalid JSON")
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return Event{}, errNotObject
	}

	raw := make(json.RawMessage, len(payload))
	copy(raw, payload)

	ev := Event{
		Type:      root.Get("type").String(),
		Status:    root.Get("status").String(),
		Step:      root.Get("step").String(),
		Message:   root.Get("message").String(),
		PatternID: root.Get("pattern_id").String(),
		Raw:       raw,
	}
	if errField := root.Get("error"); errField.Exists() {
		if errField.IsObject() {
			ev.Error = errField.Get("message").String()
		} else {
			ev.Error = errField.String()
		}
	}
	if data := root.Get("data"); data.Exists() && data.Type != gjson.Null {
		ev.Data = json.RawMessage(data.Raw)
	}
	return ev, nil
}

// Kind возвращает type, а для старых бэкендов status.
func (e Event) Kind() string {
	if e.Type != "" {
		return e.Type
	}
	return e.Status
}

// IsError сообщает, что бэкенд прислал событие ошибки в любом из двух полей.
func (e Event) IsError() bool {
	return e.Type == KindError || e.Status == KindError
}

// ErrorMessage returns the human readable message of an error event.
func (e Event) ErrorMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	default:
		return DefaultErrorMessage
	}
}

// Payload декодирует вложенный объект под ключом key (например "http_trace").
// Если вложенного объекта нет, декодируется событие целиком: часть бэкендов шлёт поля плоско.
func (e Event) Payload(key string, v any) error {
	if key != "" {
		if nested := gjson.GetBytes(e.Raw, key); nested.IsObject() {
			return json.Unmarshal([]byte(nested.Raw), v)
		}
	}
	return json.Unmarshal(e.Raw, v)
}

// Get reads an arbitrary path from the raw event (gjson syntax).
func (e Event) Get(path string) gjson.Result {
	return gjson.GetBytes(e.Raw, path)
}

// StreamError - ошибка, о которой бэкенд сообщил внутри потока.
type StreamError struct {
	Message string
	Event   Event
}

func (e *StreamError) Error() string {
	return e.Message
}
