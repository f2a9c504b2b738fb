package web

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbonchek/patterning-web-v2/internal/models"
)

func TestNewRenderer_ParsesAllPages(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)

	for _, page := range []string{
		"404.html", "login.html", "gallery.html", "pattern.html", "dashboard.html",
		"library.html", "manage.html", "prompts.html", "prompt_edit.html", "voicelab.html",
		"brief_lab.html", "image_lab.html", "pattern_play.html", "branching.html", "trace.html",
	} {
		assert.True(t, r.Has(page), page)
	}
	assert.False(t, r.Has("layout.html"))
}

func TestRenderer_Gallery(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	err = r.Instance("gallery.html", gin.H{
		"Query": "",
		"View":  "grid",
		"Patterns": []models.Pattern{
			{ID: "1", Word: "Ocean", ThumbnailURL: "https://img.example/o.png", CreatedAt: time.Now()},
		},
	}).Render(w)
	require.NoError(t, err)

	body := w.Body.String()
	assert.Contains(t, body, `href="/ocean"`)
	assert.Contains(t, body, "https://img.example/o.png")
	assert.NotContains(t, body, "Log out", "публичные страницы без меню админки")
}

func TestRenderer_UnknownPageFallsBackTo404(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, r.Instance("missing.html", gin.H{"Path": "/nowhere"}).Render(w))
	assert.Contains(t, w.Body.String(), "/nowhere")
}

func TestMarkdown(t *testing.T) {
	assert.Contains(t, string(Markdown("**deep** water")), "<strong>deep</strong>")
	assert.NotContains(t, string(Markdown("<script>alert(1)</script>")), "<script>")
}

func TestFuncs(t *testing.T) {
	assert.Equal(t, "GiveVoice.to/new york", ShareURL("GiveVoice.to/", " New York "))
	assert.Equal(t, "abc…", truncate(3, "abcdef"))
	assert.Equal(t, "ab", truncate(3, "ab"))
	assert.Equal(t, "", fmtTime(time.Time{}))
	assert.Equal(t, "{\n  \"a\": 1\n}", prettyJSON([]byte(`{"a":1}`)))
	assert.Equal(t, "not json", prettyJSON("not json"))
}
