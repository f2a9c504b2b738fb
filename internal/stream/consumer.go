package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Opener выполняет HTTP-запрос и возвращает тело ответа-потока.
// Для неуспешного статуса Opener должен вернуть ошибку до того, как что-либо прочитано.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Handlers - колбэки одного запуска потока.
type Handlers struct {
	OnUpdate   func(Event)
	OnComplete func()
	OnError    func(error)
}

// Consumer читает потоки генерации.
type Consumer struct {
	logger *zap.Logger
}

// NewConsumer создает Consumer.
func NewConsumer(logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{logger: logger.Named("StreamConsumer")}
}

// Consume передает каждое событие из r в onEvent в порядке поступления.
// После события ошибки чтение прекращается и возвращается *StreamError.
// Контекст проверяется перед каждым чтением и перед каждой доставкой события.
func (c *Consumer) Consume(ctx context.Context, r io.Reader, onEvent func(Event)) error {
	dec := NewDecoder(r, c.logger)
	for {
		ev, err := dec.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if onEvent != nil {
			onEvent(ev)
		}
		if ev.IsError() {
			return &StreamError{Message: ev.ErrorMessage(), Event: ev}
		}
	}
}

// Run открывает поток и гарантирует ровно один вызов OnComplete или OnError.
// Возвращает ту же ошибку, что была передана в OnError, либо nil.
func (c *Consumer) Run(ctx context.Context, open Opener, h Handlers) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream handler panic: %v", r)
			c.logger.Error("Recovered from panic while consuming stream", zap.Any("panic", r))
		}
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			return
		}
		if h.OnComplete != nil {
			h.OnComplete()
		}
	}()

	body, err := open(ctx)
	if err != nil {
		c.logger.Warn("Failed to open stream", zap.Error(err))
		return err
	}
	defer body.Close()

	if err := c.Consume(ctx, body, h.OnUpdate); err != nil {
		var streamErr *StreamError
		if !errors.As(err, &streamErr) {
			c.logger.Warn("Stream read failed", zap.Error(err))
		}
		return err
	}
	return nil
}
