package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbonchek/patterning-web-v2/internal/auth"
	"github.com/mbonchek/patterning-web-v2/internal/client/mocks"
	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/messaging"
	"github.com/mbonchek/patterning-web-v2/internal/models"
	"github.com/mbonchek/patterning-web-v2/internal/web"
)

type testServer struct {
	router  *gin.Engine
	backend *mocks.Backend
	runs    *generation.Manager
	events  []messaging.ConsoleEvent
}

type testOptions struct {
	authConfig   auth.Config
	loginLimiter gin.HandlerFunc
	logger       *zap.Logger
}

type recordingPublisher struct{ s *testServer }

func (p recordingPublisher) Publish(_ context.Context, e messaging.ConsoleEvent) error {
	p.s.events = append(p.s.events, e)
	return nil
}

func (recordingPublisher) Close() error { return nil }

func newTestServer(t *testing.T, opts ...func(*testOptions)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	o := testOptions{authConfig: auth.Config{Username: "admin"}, logger: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}

	renderer, err := web.NewRenderer(nil)
	require.NoError(t, err)
	authn, err := auth.New(o.authConfig, nil)
	require.NoError(t, err)

	s := &testServer{backend: mocks.NewBackend(t)}
	s.runs = generation.NewManager(s.backend, generation.ManagerConfig{}, nil)
	t.Cleanup(s.runs.Wait)

	h := New(Deps{
		Backend:      s.backend,
		Runs:         s.runs,
		Auth:         authn,
		Publisher:    recordingPublisher{s: s},
		LoginLimiter: o.loginLimiter,
		Logger:       o.logger,
	})
	s.router = gin.New()
	s.router.HTMLRender = renderer
	s.router.Use(CustomErrorMiddleware(zap.NewNop()))
	h.RegisterRoutes(s.router)
	return s
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (s *testServer) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func sse(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func flashCookie(w *httptest.ResponseRecorder) string {
	for _, c := range w.Result().Cookies() {
		if c.Name == "flash_msg" && c.MaxAge > 0 {
			return c.Value
		}
	}
	return ""
}

func TestGallery_NewestFirstAndSearch(t *testing.T) {
	s := newTestServer(t)
	now := time.Now()
	s.backend.On("ListPatterns", mock.Anything).Return([]models.Pattern{
		{ID: "1", Word: "Ember", CreatedAt: now.Add(-time.Hour)},
		{ID: "2", Word: "Ocelot", CreatedAt: now.Add(-time.Minute)},
		{ID: "3", Word: "Ocean", CreatedAt: now},
	}, nil)

	w := s.get("/?q=OCE")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.NotContains(t, body, "Ember")
	require.Contains(t, body, "Ocean")
	require.Contains(t, body, "Ocelot")
	assert.Less(t, strings.Index(body, "Ocean"), strings.Index(body, "Ocelot"), "новые паттерны первыми")
}

func TestGallery_BackendError(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("ListPatterns", mock.Anything).Return(nil, errors.New("connection refused"))

	w := s.get("/")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestWordRoute(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("GetPatternByWord", mock.Anything, "ocean").
		Return(models.Pattern{ID: "3", Word: "Ocean", Voicing: "I am **deep**"}, nil)
	s.backend.On("GetPatternByWord", mock.Anything, "nothing").Return(models.Pattern{}, models.ErrNotFound)

	w := s.get("/ocean")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<strong>deep</strong>")
	assert.Contains(t, w.Body.String(), "GiveVoice.to/ocean")

	assert.Equal(t, http.StatusNotFound, s.get("/nothing").Code)

	w = s.get("/a/b")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "/a/b")
	s.backend.AssertNumberOfCalls(t, "GetPatternByWord", 2)
}

func TestDashboard_SummaryIsOptional(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("ListPatterns", mock.Anything).Return([]models.Pattern{{ID: "1"}, {ID: "2"}}, nil)
	s.backend.On("ListPrompts", mock.Anything).Return([]models.Prompt{{Slug: "voicing"}, {Slug: "voicing"}, {Slug: "layers"}}, nil)
	s.backend.On("RunsSummary", mock.Anything).Return(models.RunsSummary{}, models.ErrNotFound)

	w := s.get("/admin")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<span>2</span>patterns")
	assert.Contains(t, body, "<span>2</span>prompt slugs")
	assert.NotContains(t, body, "pipeline runs")
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	s := newTestServer(t, func(o *testOptions) {
		o.authConfig = auth.Config{Username: "admin", PasswordHash: string(hash), Secret: "test-secret", TTL: time.Hour}
		o.loginLimiter = NewLoginLimiter(nil, 2, time.Minute, zap.NewNop())
	})

	w := s.get("/admin/voice")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2Fadmin%2Fvoice", w.Header().Get("Location"))

	w = s.post("/login", url.Values{"username": {"admin"}, "password": {"wrong"}, "next": {"/admin/voice"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid username or password")

	w = s.post("/login", url.Values{"username": {"admin"}, "password": {"secret"}, "next": {"//evil.example"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin", w.Header().Get("Location"))

	w = s.post("/login", url.Values{"username": {"admin"}, "password": {"secret"}})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)
	w := s.post("/logout", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestTrace(t *testing.T) {
	s := newTestServer(t)
	s.backend.On("PatternTrace", mock.Anything, "42").Return([]generation.HTTPTrace{
		{Method: "POST", URL: "https://llm.example/v1/chat", Status: 200, Step: "verbal_voicing"},
	}, nil)
	s.backend.On("PatternTrace", mock.Anything, "43").Return(nil, models.ErrNotFound)

	w := s.get("/admin/patterns/42/trace")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://llm.example/v1/chat")
	assert.Contains(t, w.Body.String(), "Voicing")

	assert.Equal(t, http.StatusNotFound, s.get("/admin/patterns/43/trace").Code)
}

func TestTokenCounters(t *testing.T) {
	assert.Equal(t, 0, ApproxTokenCounter{}.Count(""))
	assert.Equal(t, 3, ApproxTokenCounter{}.Count("0123456789"))
}
