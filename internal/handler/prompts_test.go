package handler

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mbonchek/patterning-web-v2/internal/client"
	"github.com/mbonchek/patterning-web-v2/internal/messaging"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

func voicingVersions() []models.Prompt {
	now := time.Now()
	return []models.Prompt{
		{ID: "p1", Slug: "voicing", Version: 1, Template: "Voice {{word}}", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "p2", Slug: "voicing", Version: 2, Template: "Speak as {{word}}", IsActive: true, CreatedAt: now.Add(-time.Hour)},
		{ID: "p3", Slug: "voicing", Version: 3, Template: "Be {{word}} with {{layers}}", CreatedAt: now},
	}
}

func TestPrompts_Grouped(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("ListPrompts", mock.Anything).Return(voicingVersions(), nil)

	w := s.get("/admin/prompts")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "3 versions")
	assert.Contains(t, body, "/admin/prompts/p2")
	assert.Contains(t, body, "/admin/prompts/p1/activate?slug=voicing")
}

func TestPromptEditor_LoadsTestData(t *testing.T) {
	s := newTestServer(t)
	versions := voicingVersions()
	s.backend.On("GetPromptVersion", mock.Anything, "p3").Return(versions[2], nil)
	s.backend.On("ListPrompts", mock.Anything).Return(versions, nil)
	s.backend.On("History", mock.Anything).Return([]models.Pattern{{ID: "7", Word: "ocean", Layers: "salt and depth"}}, nil)

	w := s.get("/admin/prompts/p3?from=7")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Save as v4")
	assert.Contains(t, body, "v3.t70.p95.k40.n4096")
	assert.Contains(t, body, `name="var_layers"`)
	assert.Contains(t, body, "salt and depth")
}

func TestSavePrompt_CreatesNextVersion(t *testing.T) {
	s := newTestServer(t)
	versions := voicingVersions()
	s.backend.On("GetPromptVersion", mock.Anything, "p2").Return(versions[1], nil)
	s.backend.On("ListPrompts", mock.Anything).Return(versions, nil)
	s.backend.On("CreatePromptVersion", mock.Anything, "voicing", mock.MatchedBy(func(p models.Prompt) bool {
		cfg := p.Config()
		return p.Version == 4 && p.ID == "" && !p.IsActive && p.Template == "New {{word}}" && cfg.Temperature == 0.5 && cfg.TopK == 40
	})).Return(models.Prompt{ID: "p4", Slug: "voicing", Version: 4}, nil).Once()

	w := s.post("/admin/prompts/p2/save", url.Values{
		"slug":        {"ignored"},
		"template":    {"New {{word}}"},
		"temperature": {"0.5"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/prompts/p4", w.Header().Get("Location"))
	require.Len(t, s.events, 1)
	assert.Equal(t, messaging.EventPromptSaved, s.events[0].Type)
}

func TestSavePrompt_UpdateInPlace(t *testing.T) {
	s := newTestServer(t)
	versions := voicingVersions()
	s.backend.On("GetPromptVersion", mock.Anything, "p2").Return(versions[1], nil)
	s.backend.On("ListPrompts", mock.Anything).Return(versions, nil)
	s.backend.On("UpdatePromptVersion", mock.Anything, "p2", mock.MatchedBy(func(p models.Prompt) bool {
		return p.Version == 2 && p.VersionLabel == "warmer"
	})).Return(models.Prompt{}, nil).Once()

	w := s.post("/admin/prompts/p2/save", url.Values{
		"mode":          {"update"},
		"version_label": {"warmer"},
		"template":      {"Speak as {{word}}"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/prompts/p2", w.Header().Get("Location"))
}

func TestSavePrompt_InvalidSettings(t *testing.T) {
	s := newTestServer(t)
	versions := voicingVersions()
	s.backend.On("GetPromptVersion", mock.Anything, "p2").Return(versions[1], nil)
	s.backend.On("ListPrompts", mock.Anything).Return(versions, nil)
	s.backend.On("History", mock.Anything).Return(nil, nil)

	w := s.post("/admin/prompts/p2/save", url.Values{"template": {"x"}, "temperature": {"3"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "temperature must be between 0 and 2")
	s.backend.AssertNotCalled(t, "CreatePromptVersion", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreatePrompt_NewSlug(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("ListPrompts", mock.Anything).Return(voicingVersions(), nil)
	s.backend.On("CreatePromptVersion", mock.Anything, "essence", mock.MatchedBy(func(p models.Prompt) bool {
		return p.Version == 1 && p.Slug == "essence"
	})).Return(models.Prompt{ID: "e1"}, nil).Once()

	w := s.post("/admin/prompts/new", url.Values{"slug": {"essence"}, "template": {"Distill {{word}}"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/prompts/e1", w.Header().Get("Location"))
}

func TestActivatePrompt(t *testing.T) {
	s := newTestServer(t)
	versions := voicingVersions()
	s.backend.On("GetPromptVersion", mock.Anything, "p3").Return(versions[2], nil)
	s.backend.On("ListPrompts", mock.Anything).Return(versions, nil)

	w := s.get("/admin/prompts/p3/activate")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Make voicing v3 live?")

	w = s.post("/admin/prompts/p3/activate", url.Values{"slug": {"voicing"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/prompts/p3/activate", w.Header().Get("Location"))
	s.backend.AssertNotCalled(t, "ActivatePrompt", mock.Anything, mock.Anything, mock.Anything)

	s.backend.On("ActivatePrompt", mock.Anything, "p3", "voicing").Return(nil).Once()
	w = s.post("/admin/prompts/p3/activate", url.Values{"slug": {"voicing"}, "confirm": {"yes"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/prompts", w.Header().Get("Location"))
	require.Len(t, s.events, 1)
	assert.Equal(t, messaging.EventPromptActivated, s.events[0].Type)
}

func TestTestPrompt(t *testing.T) {
	s := newTestServer(t)
	versions := voicingVersions()
	s.backend.On("GetPromptVersion", mock.Anything, "p3").Return(versions[2], nil)
	s.backend.On("ListPrompts", mock.Anything).Return(versions, nil)
	s.backend.On("History", mock.Anything).Return(nil, nil)
	s.backend.On("TestTemplate", mock.Anything, client.TemplateTestRequest{
		Template: "Be {{word}} with {{layers}}",
		Inputs:   map[string]string{"word": "ocean", "layers": "salt"},
		Config:   models.DefaultModelConfig,
	}).Return(client.LabExchange{
		Request:  []byte(`{"template":"Be {{word}}"}`),
		Response: []byte(`{"content":"I rise"}`),
		Output:   "I rise",
	}, nil).Once()

	w := s.post("/admin/prompts/p3/test", url.Values{"var_word": {"ocean"}, "var_layers": {"salt"}})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "I rise")
	assert.Contains(t, body, "Sent request")
}

func TestTestPrompt_LogsVersionListFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := newTestServer(t, func(o *testOptions) { o.logger = zap.New(core) })
	versions := voicingVersions()
	s.backend.On("GetPromptVersion", mock.Anything, "p3").Return(versions[2], nil)
	s.backend.On("ListPrompts", mock.Anything).Return(nil, errors.New("backend down"))
	s.backend.On("History", mock.Anything).Return(nil, nil).Maybe()
	s.backend.On("TestTemplate", mock.Anything, mock.Anything).
		Return(client.LabExchange{Output: "I rise"}, nil).Once()

	w := s.post("/admin/prompts/p3/test", url.Values{"var_word": {"ocean"}, "var_layers": {"salt"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "I rise")
	assert.Equal(t, 1, logs.FilterMessage("Failed to load prompt versions").Len())
}
