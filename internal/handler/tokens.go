package handler

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter оценивает размер промпта в токенах.
type TokenCounter interface {
	Count(text string) int
}

// ApproxTokenCounter - оценка "4 символа на токен", когда словарь недоступен.
type ApproxTokenCounter struct{}

func (ApproxTokenCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// TiktokenCounter считает токены словарем tiktoken. Словарь загружается при первом подсчете.
type TiktokenCounter struct {
	encoding string
	logger   *zap.Logger

	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback ApproxTokenCounter
}

func NewTiktokenCounter(encoding string, logger *zap.Logger) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenCounter{encoding: encoding, logger: logger.Named("TokenCounter")}
}

func (t *TiktokenCounter) Count(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.logger.Warn("Tokenizer unavailable, using approximate counts", zap.String("encoding", t.encoding), zap.Error(err))
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return t.fallback.Count(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
