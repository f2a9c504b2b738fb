package generation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/messaging"
	"github.com/mbonchek/patterning-web-v2/internal/metrics"
)

var (
	ErrNoWords     = errors.New("no words to generate")
	ErrRunNotFound = errors.New("run not found")
)

// RunArchive сохраняет завершенные пакеты.
type RunArchive interface {
	SaveRun(ctx context.Context, run Snapshot) error
}

// CacheInvalidator сбрасывает закешированные списки паттернов после генерации.
type CacheInvalidator interface {
	InvalidatePatterns(ctx context.Context) error
}

// ManagerConfig - зависимости Manager. Nil-поля заменяются заглушками.
type ManagerConfig struct {
	Archive     RunArchive
	Publisher   messaging.EventPublisher
	Cache       CacheInvalidator
	WordTimeout time.Duration
	// KeepRuns - сколько завершенных пакетов держать в памяти.
	KeepRuns int
}

// Manager запускает пакеты в фоне и хранит их состояние в памяти.
type Manager struct {
	runner    *Runner
	archive   RunArchive
	publisher messaging.EventPublisher
	cache     CacheInvalidator
	keepRuns  int
	logger    *zap.Logger

	mu      sync.RWMutex
	runs    map[string]*Batch
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(streamer WordStreamer, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = messaging.NopPublisher{}
	}
	if cfg.KeepRuns <= 0 {
		cfg.KeepRuns = 50
	}

	m := &Manager{
		archive:   cfg.Archive,
		publisher: cfg.Publisher,
		cache:     cfg.Cache,
		keepRuns:  cfg.KeepRuns,
		logger:    logger.Named("RunManager"),
		runs:      make(map[string]*Batch),
		cancels:   make(map[string]context.CancelFunc),
	}
	m.runner = NewRunner(streamer, logger,
		WithWordTimeout(cfg.WordTimeout),
		WithEntryDone(func(e LogEntry) {
			in, out := e.TotalTokens()
			metrics.WordFinished(string(e.Status), e.Duration().Seconds(), in, out)
		}),
	)
	return m
}

// Start создает пакет и запускает его в фоне. Контекст запуска не связан с HTTP-запросом.
func (m *Manager) Start(words []string) (*Batch, error) {
	if len(words) == 0 {
		return nil, ErrNoWords
	}
	b := NewBatch(words)
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.runs[b.ID()] = b
	m.cancels[b.ID()] = cancel
	m.evictLocked()
	m.mu.Unlock()

	metrics.BatchStarted()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.runner.Run(ctx, b)
		m.finished(b)
	}()
	return b, nil
}

func (m *Manager) Get(id string) (*Batch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.runs[id]
	return b, ok
}

// Cancel останавливает пакет. Текущее слово завершится ошибкой "cancelled".
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	cancel, active := m.cancels[id]
	_, known := m.runs[id]
	m.mu.RUnlock()
	if !active {
		if known {
			return nil
		}
		return ErrRunNotFound
	}
	cancel()
	m.logger.Info("Batch cancel requested", zap.String("batch_id", id))
	return nil
}

// List returns snapshots of in-memory runs, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.runs))
	for _, b := range m.runs {
		out = append(out, b.Snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Wait блокируется, пока не завершатся все запущенные пакеты.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown отменяет все активные пакеты и ждет их завершения.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) finished(b *Batch) {
	snap := b.Snapshot()
	metrics.BatchFinished(snap.Cancelled)

	m.mu.Lock()
	delete(m.cancels, b.ID())
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log := m.logger.With(zap.String("batch_id", snap.ID))

	if m.archive != nil {
		if err := m.archive.SaveRun(ctx, snap); err != nil {
			log.Error("Failed to archive run", zap.Error(err))
		}
	}
	if m.cache != nil {
		if err := m.cache.InvalidatePatterns(ctx); err != nil {
			log.Warn("Failed to invalidate pattern cache", zap.Error(err))
		}
	}

	counts := snap.Counts()
	words := make([]string, len(snap.Entries))
	for i, e := range snap.Entries {
		words[i] = e.Word
	}
	err := m.publisher.Publish(ctx, messaging.ConsoleEvent{
		Type:       messaging.EventRunFinished,
		RunID:      snap.ID,
		Words:      words,
		Succeeded:  counts[StatusSuccess],
		Failed:     counts[StatusError],
		OccurredAt: snap.FinishedAt,
	})
	if err != nil {
		// событие не критично для пользователя, пакет уже сохранен
		log.Error("Failed to publish run_finished event", zap.Error(err))
	}
}

// evictLocked удаляет самые старые завершенные пакеты сверх keepRuns.
func (m *Manager) evictLocked() {
	if len(m.runs) <= m.keepRuns {
		return
	}
	type aged struct {
		id string
		at time.Time
	}
	var done []aged
	for id, b := range m.runs {
		if _, active := m.cancels[id]; active {
			continue
		}
		done = append(done, aged{id: id, at: b.createdAt})
	}
	sort.Slice(done, func(i, j int) bool { return done[i].at.Before(done[j].at) })
	for _, d := range done {
		if len(m.runs) <= m.keepRuns {
			break
		}
		delete(m.runs, d.id)
	}
}
