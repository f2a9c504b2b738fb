package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/client"
	"github.com/mbonchek/patterning-web-v2/internal/messaging"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

func TestBriefLab(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("History", mock.Anything).Return([]models.Pattern{ocean}, nil)

	w := s.get("/admin/test-brief?from=7")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "I am the tide")

	s.backend.On("GenerateBrief", mock.Anything, client.BriefRequest{Word: "ocean", Voicing: "tide"}).
		Return(client.LabExchange{Request: []byte(`{"word":"ocean"}`), Response: []byte(`{"brief":"blue"}`), Output: "A blue horizon"}, nil).Once()
	w = s.post("/admin/test-brief", url.Values{"word": {"ocean"}, "voicing": {"tide"}})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "A blue horizon")
	assert.Contains(t, body, "Received response")

	w = s.post("/admin/test-brief", url.Values{"word": {" "}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImageLab_Error(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("History", mock.Anything).Return(nil, nil)
	s.backend.On("GenerateImage", mock.Anything, "a blue horizon").
		Return(client.LabExchange{}, &client.APIError{Op: "generate_image", StatusCode: 500, Body: "quota exceeded"}).Once()

	w := s.post("/admin/test-image", url.Values{"brief": {"a blue horizon"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quota exceeded")
}

func TestPatternPlay_RunsColumnsIndependently(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("GenerateVoicing", mock.Anything, client.VoicingRequest{SystemPrompt: "You are {{word}}", UserPrompt: "Speak of salt as ocean"}).
		Return(client.LabExchange{Output: "I am salt"}, nil).Once()
	s.backend.On("GenerateVoicing", mock.Anything, client.VoicingRequest{SystemPrompt: "", UserPrompt: "Fail ocean {{layers}}"}).
		Return(client.LabExchange{}, errors.New("model timeout")).Once()

	w := s.post("/admin/pattern-play", url.Values{
		"word":     {"ocean"},
		"layers":   {"salt"},
		"system_0": {"You are {{word}}"},
		"user_0":   {"Speak of {{layers}} as {{word}}"},
		"user_1":   {"Fail {{word}} {{layers}}"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "I am salt")
	assert.Contains(t, body, "model timeout")
	s.backend.AssertNumberOfCalls(t, "GenerateVoicing", 2)
}

func TestPatternPlay_CustomLayersToggle(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("GenerateVoicing", mock.Anything, client.VoicingRequest{UserPrompt: "ocean with salt"}).
		Return(client.LabExchange{Output: "layered"}, nil).Once()
	s.backend.On("GenerateVoicing", mock.Anything, client.VoicingRequest{UserPrompt: "ocean with {{layers}}"}).
		Return(client.LabExchange{Output: "plain"}, nil).Once()

	form := url.Values{"word": {"ocean"}, "layers": {"salt"}, "user_2": {"{{word}} with {{layers}}"}, "use_layers_2": {"on"}}
	w := s.post("/admin/pattern-play", form)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "layered")

	form.Del("use_layers_2")
	w = s.post("/admin/pattern-play", form)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "plain")
}

func TestPlayUserPrompt(t *testing.T) {
	assert.Equal(t, "ocean: salt", playUserPrompt("{{word}}: {{layers}}", "ocean", "salt", true))
	assert.Equal(t, "ocean: {{layers}}", playUserPrompt("{{word}}: {{layers}}", "ocean", "salt", false))
	assert.Equal(t, "ocean: {{layers}}", playUserPrompt("{{word}}: {{layers}}", "ocean", "", true))
}

func TestPatternPlay_LoadPrompts(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("GetPrompt", mock.Anything, "word_verbal_voicing").
		Return(models.Prompt{Slug: "word_verbal_voicing", Template: "Be {{word}} now", SystemPrompt: "sys"}, nil).Once()

	w := s.get("/admin/pattern-play?load=prompts&word=ocean")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Be {{word}} now")
	assert.Contains(t, body, "Create a poetic voicing for the word: {{word}}")
	assert.Contains(t, body, "Current Patterning")
	assert.Contains(t, body, `name="use_layers_2"`)
}

func lineage() models.LineageTree {
	child := &models.LineageNode{ID: "n2", Word: "ocean", ParentPatternID: "n1", BranchPoint: "vevc", Generation: 1}
	root := &models.LineageNode{ID: "n1", Word: "ocean", BranchCount: 1, Children: []*models.LineageNode{child}}
	return models.LineageTree{Roots: []*models.LineageNode{root}, TotalBranches: 1, MaxGeneration: 1}
}

func TestBranching_ConfirmStep(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("LineageTree", mock.Anything).Return(lineage(), nil)

	w := s.get("/admin/branching?node=n1&from=vevc")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Branch from Voicing?")
	assert.Contains(t, body, `name="from" value="vevc"`)

	w = s.post("/admin/branching", url.Values{"node": {"n1"}, "from": {"vevc"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/branching?node=n1&from=vevc", w.Header().Get("Location"))
	s.backend.AssertNotCalled(t, "StreamBranch", mock.Anything, mock.Anything, mock.Anything)
}

func TestBranching_ConsumesStream(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("LineageTree", mock.Anything).Return(lineage(), nil)
	s.backend.On("StreamBranch", mock.Anything, "n1", "vevc").Return(sse(
		`data: {"type":"step","step":"verbal_voicing"}`,
		`data: {"type":"success","step":"verbal_voicing","data":{"content":"I rise"}}`,
		`data: {"type":"complete","data":{"id":"n3"}}`,
	), nil).Once()

	w := s.post("/admin/branching", url.Values{"node": {"n1"}, "from": {"vevc"}, "confirm": {"yes"}})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Branch created")
	assert.Contains(t, body, "/admin/patterns/n3/trace")
	assert.Contains(t, body, "Branch created for “ocean”")

	require.Len(t, s.events, 1)
	assert.Equal(t, messaging.EventBranchCreated, s.events[0].Type)
	assert.Equal(t, "n3", s.events[0].PatternID)
	assert.Equal(t, []string{"ocean"}, s.events[0].Words)
}

func TestBranchWord_FallsBackToNodeID(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("LineageTree", mock.Anything).Return(models.LineageTree{}, errors.New("down")).Once()
	s.backend.On("LineageTree", mock.Anything).Return(lineage(), nil)
	h := New(Deps{Backend: s.backend, Logger: zap.NewNop()})

	assert.Equal(t, "n9", h.branchWord(context.Background(), "n9"))
	assert.Equal(t, "ocean", h.branchWord(context.Background(), "n2"))
	assert.Equal(t, "missing", h.branchWord(context.Background(), "missing"))
}

func TestBranching_StreamError(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("LineageTree", mock.Anything).Return(lineage(), nil)
	s.backend.On("StreamBranch", mock.Anything, "n2", "vily").Return(sse(
		`data: {"status":"error","error":"seed missing"}`,
	), nil).Once()

	w := s.post("/admin/branching", url.Values{"node": {"n2"}, "from": {"vily"}, "confirm": {"yes"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "seed missing")
	assert.Empty(t, s.events)
}

func TestFlattenTree(t *testing.T) {
	rows := flattenTree(lineage())
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Depth)
	assert.Equal(t, "n2", rows[1].Node.ID)
	assert.Equal(t, 1, rows[1].Depth)
}
