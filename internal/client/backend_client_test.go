package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/models"
	"github.com/mbonchek/patterning-web-v2/internal/stream"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewBackendClient(srv.URL+"/api/", 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", NormalizeBaseURL("http://localhost:8080/api"))
	assert.Equal(t, "http://localhost:8080", NormalizeBaseURL(" http://localhost:8080/ "))
	assert.Equal(t, "https://x.io/base", NormalizeBaseURL("https://x.io/base/api/"))

	_, err := NewBackendClient("not a url", time.Second, nil)
	assert.Error(t, err)
}

func TestStreamGenerate_ConsumesEvents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/word/new%20york/generate", r.URL.EscapedPath())
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"type\":\"step\",\"step\":\"layers\"}\n\n")
		w.(http.Flusher).Flush()
		_, _ = io.WriteString(w, "data: {\"type\":\"complete\",\"pattern_id\":\"5\"}\n\n")
	})

	var kinds []string
	completed := false
	err := stream.NewConsumer(nil).Run(context.Background(),
		func(ctx context.Context) (io.ReadCloser, error) { return c.StreamGenerate(ctx, " New York ") },
		stream.Handlers{
			OnUpdate:   func(ev stream.Event) { kinds = append(kinds, ev.Kind()) },
			OnComplete: func() { completed = true },
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"step", "complete"}, kinds)
	assert.True(t, completed)
}

func TestStream_NonOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"word not found"}`)
	})

	_, err := c.StreamWord(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "word not found")
}

func TestHistory_BustsCaches(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("t"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		_, _ = io.WriteString(w, `[
			{"id": 1, "word": "light", "verbal_voicing": "V", "visual_brief": "B", "created_at": "2026-01-02T03:04:05Z"},
			{"pattern": {"id": "p2", "word_seeds": {"text": "river"}, "image_url": "https://img/2.png"}}
		]`)
	})

	patterns, err := c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, models.Pattern{
		ID: "1", Word: "light", Voicing: "V", ImageBrief: "B",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, patterns[0])
	assert.Equal(t, "p2", patterns[1].ID)
	assert.Equal(t, "river", patterns[1].Word)
	assert.Equal(t, "https://img/2.png", patterns[1].Thumbnail())
}

func TestManagePattern_SendsNumericID(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/admin/manage-pattern", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success": true}`)
	})

	require.NoError(t, c.ManagePattern(context.Background(), "42", models.ActionClearImage))
	assert.Equal(t, float64(42), got["id"])
	assert.Equal(t, "clear_image", got["action"])
}

func TestManagePattern_ReportsFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success": false, "error": "locked"}`)
	})
	err := c.ManagePattern(context.Background(), "uuid-1", models.ActionDeleteAll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestPrompts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/prompts":
			_, _ = io.WriteString(w, `{"prompts": [
				{"id": 7, "slug": "voicing", "version": 2, "is_active": true, "template": "T {{word}}",
				 "temperature": 0.9, "input_variables": "[\"word\",\"layers\"]"},
				{"id": 8, "slug": "voicing", "version": 3, "top_k": null}
			]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/admin/prompts/activate":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, float64(8), body["id"])
			assert.Equal(t, "voicing", body["slug"])
			_, _ = io.WriteString(w, `{"ok": true}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/prompts/voicing":
			var body models.Prompt
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Empty(t, body.ID)
			assert.False(t, body.IsActive)
			_, _ = io.WriteString(w, `{"prompt": {"id": 9, "slug": "voicing", "version": 4}}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	prompts, err := c.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 2)
	assert.Equal(t, "7", prompts[0].ID)
	assert.Equal(t, []string{"word", "layers"}, prompts[0].InputVariables)
	require.NotNil(t, prompts[0].Temperature)
	assert.Equal(t, 0.9, *prompts[0].Temperature)
	assert.Nil(t, prompts[1].TopK)

	require.NoError(t, c.ActivatePrompt(ctx, "8", "voicing"))

	created, err := c.CreatePromptVersion(ctx, "voicing", models.Prompt{ID: "7", Version: 4, Template: "x"})
	require.NoError(t, err)
	assert.Equal(t, "9", created.ID)
	assert.Equal(t, 4, created.Version)

	_, err = c.GetPromptVersion(ctx, "404")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTestTemplate_ErrorPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body TemplateTestRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Inputs["word"] == "" {
			_, _ = io.WriteString(w, `{"error": "missing variable word"}`)
			return
		}
		_, _ = io.WriteString(w, `{"output": "voiced `+body.Inputs["word"]+`"}`)
	})
	ctx := context.Background()

	ex, err := c.TestTemplate(ctx, TemplateTestRequest{Template: "{{word}}", Inputs: map[string]string{"word": "sun"}, Config: models.DefaultModelConfig})
	require.NoError(t, err)
	assert.Equal(t, "voiced sun", ex.Output)
	assert.JSONEq(t, `{"output": "voiced sun"}`, string(ex.Response))
	assert.Contains(t, string(ex.Request), `"template":"{{word}}"`)

	_, err = c.TestTemplate(ctx, TemplateTestRequest{Template: "{{word}}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing variable word")
}

func TestLineageTree(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"roots": [{"id": "a", "generation": 0, "branch_count": 1, "word_seeds": {"text": "light"},
			"children": [{"id": "b", "parent_pattern_id": "a", "branch_point": "vevc", "generation": 1}]}],
			"total_branches": 1, "max_generation": 1}`)
	})
	tree, err := c.LineageTree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tree.TotalBranches)
	assert.Equal(t, 2, tree.Count())
	assert.Equal(t, "light", tree.Roots[0].Word)
	assert.Equal(t, "vevc", tree.Find("b").BranchPoint)
}

func TestDecoders(t *testing.T) {
	p, err := DecodePattern([]byte(`{"data": {"word": "stone", "verbal_layer": [{"content": "one"}, "two"], "verbal_essence": {"content": "E"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "stone", p.Word)
	assert.Equal(t, "one\n\ntwo", p.Layers)
	assert.Equal(t, "E", p.Essence)

	_, err = DecodePattern([]byte(`[1]`))
	assert.Error(t, err)

	list, err := DecodePatternList([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, list)

	traces, err := DecodeTraces([]byte(`{"traces": [{"method": "POST", "url": "/v1", "status": 200, "timestamp": "2026-01-01T00:00:00Z"}]}`))
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, 200, traces[0].Status)

	s, err := DecodeRunsSummary([]byte(`{"summary": {"total_runs": 4, "successful_runs": 3, "by_step": {"image": {"avg_duration_ms": 1200}}}}`))
	require.NoError(t, err)
	assert.Equal(t, 75.0, s.SuccessRate())
	assert.Equal(t, 1200.0, s.ByStep["image"])
}

// memoryCache - ResponseCache в памяти для тестов.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryCache) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

func TestCachedBackend(t *testing.T) {
	var hits int
	inner := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/patterns":
			hits++
			_, _ = io.WriteString(w, `{"patterns": [{"id": "1", "word": "light"}]}`)
		case "/api/admin/manage-pattern":
			_, _ = io.WriteString(w, `{"success": true}`)
		}
	})
	cached := NewCachedBackend(inner, &memoryCache{data: map[string][]byte{}}, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ps, err := cached.ListPatterns(ctx)
		require.NoError(t, err)
		require.Len(t, ps, 1)
	}
	assert.Equal(t, 1, hits)

	require.NoError(t, cached.ManagePattern(ctx, "1", models.ActionClearLayers))
	_, err := cached.ListPatterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, hits, "после изменения паттерна кеш сбрасывается")
}
