package generation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ParseWords разбивает ввод по переводам строк и запятым, обрезает пробелы,
// приводит к нижнему регистру и отбрасывает пустые элементы.
func ParseWords(input string) []string {
	parts := strings.FieldsFunc(input, func(r rune) bool {
		return r == '\n' || r == ','
	})
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		w := strings.ToLower(strings.TrimSpace(p))
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// Snapshot - копия состояния пакета на момент вызова.
type Snapshot struct {
	ID           string     `json:"id"`
	Entries      []LogEntry `json:"entries"`
	IsProcessing bool       `json:"is_processing"`
	Cancelled    bool       `json:"cancelled"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   time.Time  `json:"finished_at,omitempty"`
}

// Finished сообщает, что пакет отработал до конца.
func (s Snapshot) Finished() bool {
	return !s.FinishedAt.IsZero()
}

// Counts returns the number of entries per status.
func (s Snapshot) Counts() map[Status]int {
	out := map[Status]int{}
	for _, e := range s.Entries {
		out[e.Status]++
	}
	return out
}

// Batch - один пакетный запуск Voice Lab.
type Batch struct {
	id        string
	createdAt time.Time

	mu         sync.RWMutex
	entries    []LogEntry
	processing bool
	cancelled  bool
	finishedAt time.Time
	subs       map[int]chan Snapshot
	nextSub    int
}

// NewBatch создает пакет с записью pending для каждого слова.
func NewBatch(words []string) *Batch {
	entries := make([]LogEntry, len(words))
	for i, w := range words {
		entries[i] = NewLogEntry(w)
	}
	return &Batch{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		entries:   entries,
		subs:      make(map[int]chan Snapshot),
	}
}

func (b *Batch) ID() string { return b.id }

func (b *Batch) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// IsProcessing is true between the start of the first entry and the end of the last one.
func (b *Batch) IsProcessing() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.processing
}

func (b *Batch) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// Entry возвращает последнее состояние записи i (для панели деталей).
func (b *Batch) Entry(i int) (LogEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.entries) {
		return LogEntry{}, false
	}
	return b.entries[i], true
}

// Subscribe возвращает канал снимков. В канале всегда лежит самый свежий снимок;
// промежуточные могут быть пропущены. Канал закрывается после завершения пакета.
func (b *Batch) Subscribe() (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Snapshot, 1)
	ch <- b.snapshotLocked()
	if !b.finishedAt.IsZero() {
		close(ch)
		return ch, func() {}
	}

	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *Batch) update(i int, fn func(LogEntry) LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.entries) {
		return
	}
	b.entries[i] = fn(b.entries[i])
	b.publishLocked()
}

func (b *Batch) setProcessing(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processing = v
	b.publishLocked()
}

func (b *Batch) finish(cancelled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processing = false
	b.cancelled = cancelled
	b.finishedAt = time.Now().UTC()
	b.publishLocked()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *Batch) publishLocked() {
	if len(b.subs) == 0 {
		return
	}
	snap := b.snapshotLocked()
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
			// подписчик не успел забрать прошлый снимок: заменяем его свежим
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (b *Batch) snapshotLocked() Snapshot {
	// Записи неизменяемы внутри: Reduce всегда строит новые срезы и карты.
	entries := make([]LogEntry, len(b.entries))
	copy(entries, b.entries)
	return Snapshot{
		ID:           b.id,
		Entries:      entries,
		IsProcessing: b.processing,
		Cancelled:    b.cancelled,
		CreatedAt:    b.createdAt,
		FinishedAt:   b.finishedAt,
	}
}
