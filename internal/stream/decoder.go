package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
)

const dataPrefix = "data: "

// Decoder читает события из тела ответа text/event-stream.
// Строки буферизуются целиком, так что граница чанка внутри строки
// (и внутри многобайтового символа UTF-8) не влияет на результат.
type Decoder struct {
	r      *bufio.Reader
	logger *zap.Logger
	done   bool
}

// NewDecoder создает декодер поверх r.
func NewDecoder(r io.Reader, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{
		r:      bufio.NewReader(r),
		logger: logger,
	}
}

// Next returns the next event. Returns io.EOF when the stream ends.
// Lines without the `data: ` prefix are ignored, malformed JSON is logged and skipped.
func (d *Decoder) Next(ctx context.Context) (Event, error) {
	for {
		if d.done {
			return Event{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		line, err := d.r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Event{}, err
			}
			// Последняя строка без перевода строки разбирается как обычная.
			d.done = true
			if line == "" {
				return Event{}, io.EOF
			}
		}

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		payload := line[len(dataPrefix):]
		ev, parseErr := ParseEvent([]byte(payload))
		if parseErr != nil {
			d.logger.Warn("Skipping malformed stream line",
				zap.String("line", truncate(payload, 200)),
				zap.Error(parseErr),
			)
			continue
		}
		return ev, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
