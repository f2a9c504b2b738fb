package generation

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/stream"
)

// WordStreamer открывает поток генерации для одного слова.
type WordStreamer interface {
	StreamGenerate(ctx context.Context, word string) (io.ReadCloser, error)
}

// Runner обрабатывает слова пакета строго по очереди.
type Runner struct {
	streamer    WordStreamer
	consumer    *stream.Consumer
	logger      *zap.Logger
	wordTimeout time.Duration
	onEntryDone func(LogEntry)
}

// RunnerOption настраивает Runner.
type RunnerOption func(*Runner)

// WithWordTimeout ограничивает время генерации одного слова. Ноль - без ограничения.
func WithWordTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.wordTimeout = d }
}

// WithEntryDone регистрирует колбэк завершения каждой записи.
func WithEntryDone(fn func(LogEntry)) RunnerOption {
	return func(r *Runner) { r.onEntryDone = fn }
}

func NewRunner(streamer WordStreamer, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		streamer: streamer,
		consumer: stream.NewConsumer(logger),
		logger:   logger.Named("BatchRunner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run проходит по записям пакета. Слово N+1 начинается только после того,
// как поток слова N закончился или завершился ошибкой. Ошибка одного слова
// не прерывает пакет. При отмене ctx оставшиеся записи помечаются ошибкой.
func (r *Runner) Run(ctx context.Context, b *Batch) {
	log := r.logger.With(zap.String("batch_id", b.ID()))
	log.Info("Batch started", zap.Int("words", b.Len()))

	b.setProcessing(true)
	cancelled := false
	defer func() {
		b.finish(cancelled)
		log.Info("Batch finished", zap.Bool("cancelled", cancelled))
	}()

	for i := 0; i < b.Len(); i++ {
		if ctx.Err() != nil {
			cancelled = true
			b.update(i, func(e LogEntry) LogEntry { return Fail(e, "cancelled", time.Now()) })
			continue
		}
		r.runEntry(ctx, b, i, log)
	}
	if ctx.Err() != nil {
		cancelled = true
	}
}

func (r *Runner) runEntry(ctx context.Context, b *Batch, i int, log *zap.Logger) {
	entry, _ := b.Entry(i)
	word := entry.Word
	b.update(i, func(e LogEntry) LogEntry { return Start(e, time.Now()) })

	wordCtx := ctx
	if r.wordTimeout > 0 {
		var cancel context.CancelFunc
		wordCtx, cancel = context.WithTimeout(ctx, r.wordTimeout)
		defer cancel()
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		return r.streamer.StreamGenerate(ctx, word)
	}

	_ = r.consumer.Run(wordCtx, open, stream.Handlers{
		OnUpdate: func(ev stream.Event) {
			b.update(i, func(e LogEntry) LogEntry { return Reduce(e, ev) })
		},
		OnComplete: func() {
			b.update(i, func(e LogEntry) LogEntry { return Complete(e, time.Now()) })
		},
		OnError: func(err error) {
			msg := err.Error()
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				msg = "timed out"
			case errors.Is(err, context.Canceled):
				msg = "cancelled"
			}
			b.update(i, func(e LogEntry) LogEntry { return Fail(e, msg, time.Now()) })
		},
	})

	done, _ := b.Entry(i)
	log.Info("Word processed",
		zap.String("word", word),
		zap.String("status", string(done.Status)),
		zap.String("pattern_id", done.PatternID),
		zap.Duration("duration", done.Duration()),
	)
	if r.onEntryDone != nil {
		r.onEntryDone(done)
	}
}
