package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbonchek/patterning-web-v2/internal/models"
)

func newAuth(t *testing.T, password string) *Authenticator {
	t.Helper()
	var hash string
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		hash = string(h)
	}
	a, err := New(Config{Username: "admin", PasswordHash: hash, Secret: "test-secret", TTL: time.Hour}, nil)
	require.NoError(t, err)
	return a
}

func TestCheckCredentials(t *testing.T) {
	a := newAuth(t, "voice")

	assert.NoError(t, a.CheckCredentials("admin", "voice"))
	assert.NoError(t, a.CheckCredentials(" admin ", "voice"))
	assert.ErrorIs(t, a.CheckCredentials("admin", "wrong"), models.ErrInvalidCredentials)
	assert.ErrorIs(t, a.CheckCredentials("root", "voice"), models.ErrInvalidCredentials)
}

func TestNew_RejectsPlainPassword(t *testing.T) {
	_, err := New(Config{Username: "admin", PasswordHash: "plaintext"}, nil)
	assert.Error(t, err)
}

func TestTokens(t *testing.T) {
	a := newAuth(t, "voice")

	token, expires, err := a.IssueToken("admin", time.Now())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := a.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)

	old, _, err := a.IssueToken("admin", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = a.ParseToken(old)
	assert.ErrorIs(t, err, models.ErrSessionExpired)

	other := newAuth(t, "voice")
	other.secret = []byte("another-secret")
	forged, _, err := other.IssueToken("admin", time.Now())
	require.NoError(t, err)
	_, err = a.ParseToken(forged)
	assert.ErrorIs(t, err, models.ErrSessionInvalid)
}

func protectedRouter(a *Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", func(c *gin.Context) {
		if err := a.Login(c, c.PostForm("username"), c.PostForm("password")); err != nil {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusNoContent)
	})
	admin := r.Group("/admin", a.Middleware())
	admin.GET("", func(c *gin.Context) { c.String(http.StatusOK, CurrentUser(c)) })
	admin.GET("/voice/runs/:id/ws", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestMiddleware(t *testing.T) {
	a := newAuth(t, "voice")
	r := protectedRouter(a)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin?tab=1", nil))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2Fadmin%3Ftab%3D1", w.Header().Get("Location"))

	ws := httptest.NewRequest(http.MethodGet, "/admin/voice/runs/x/ws", nil)
	ws.Header.Set("Upgrade", "websocket")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, ws)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	login := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=admin&password=voice"))
	login.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, login)
	require.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", w.Body.String())
}

func TestMiddleware_Disabled(t *testing.T) {
	a := newAuth(t, "")
	assert.False(t, a.Enabled())

	w := httptest.NewRecorder()
	protectedRouter(a).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFlash(t *testing.T) {
	a := newAuth(t, "voice")
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	a.SetFlash(c, "error", "Failed to delete pattern")
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/admin/library", nil)
	c.Request.AddCookie(cookies[0])
	f := a.PopFlash(c)
	require.NotNil(t, f)
	assert.True(t, f.IsError())
	assert.Equal(t, "Failed to delete pattern", f.Message)

	tampered := *cookies[0]
	tampered.Value = "eyJ0IjoiZXJyb3IiLCJtIjoieCJ9|AAAA"
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&tampered)
	assert.Nil(t, a.PopFlash(c))
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/admin/voice", SafeNext("/admin/voice"))
	assert.Equal(t, "/admin", SafeNext(""))
	assert.Equal(t, "/admin", SafeNext("https://evil.example"))
	assert.Equal(t, "/admin", SafeNext("//evil.example"))
}
