package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbonchek/patterning-web-v2/internal/models"
)

const (
	SessionCookie = "admin_session"
	issuer        = "pattern-console"
	ctxAdminUser  = "admin_user"
)

// Claims - содержимое токена сессии админки.
type Claims struct {
	jwt.RegisteredClaims
}

// Config - параметры входа в админку.
type Config struct {
	Username     string
	PasswordHash string
	Secret       string
	TTL          time.Duration
	SecureCookie bool
}

// Authenticator проверяет пароль админа и выдает/проверяет cookie сессии.
type Authenticator struct {
	username string
	hash     []byte
	secret   []byte
	ttl      time.Duration
	secure   bool
	logger   *zap.Logger
}

// New создает Authenticator. Без хеша пароля админка открыта; без секрета генерируется случайный.
func New(cfg Config, logger *zap.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
	}
	if cfg.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, fmt.Errorf("ADMIN_PASSWORD_HASH is not a bcrypt hash: %w", err)
		}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	a := &Authenticator{
		username: cfg.Username,
		hash:     []byte(cfg.PasswordHash),
		secret:   secret,
		ttl:      ttl,
		secure:   cfg.SecureCookie,
		logger:   logger.Named("Authenticator"),
	}
	if !a.Enabled() {
		a.logger.Warn("ADMIN_PASSWORD_HASH is empty, admin console is not password protected")
	}
	return a, nil
}

// Enabled - задан ли пароль админа.
func (a *Authenticator) Enabled() bool {
	return len(a.hash) > 0
}

// Secret - ключ подписи сессии и flash-сообщений.
func (a *Authenticator) Secret() []byte {
	return a.secret
}

// CheckCredentials сравнивает логин и пароль с настроенными.
func (a *Authenticator) CheckCredentials(username, password string) error {
	if !a.Enabled() {
		return nil
	}
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(a.username)) == 1
	// bcrypt выполняется всегда, чтобы время ответа не выдавало логин
	passErr := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
	if !userOK || passErr != nil {
		return models.ErrInvalidCredentials
	}
	return nil
}

// IssueToken подписывает токен сессии.
func (a *Authenticator) IssueToken(username string, now time.Time) (string, time.Time, error) {
	expires := now.Add(a.ttl)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, expires, nil
}

// ParseToken проверяет подпись и срок токена сессии.
func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", models.ErrSessionInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, models.ErrSessionInvalid
	}
	return claims, nil
}

// Login проверяет пароль и ставит cookie сессии.
func (a *Authenticator) Login(c *gin.Context, username, password string) error {
	if err := a.CheckCredentials(username, password); err != nil {
		a.logger.Warn("Login failed", zap.String("username", username), zap.String("ip", c.ClientIP()))
		return err
	}
	token, expires, err := a.IssueToken(username, time.Now())
	if err != nil {
		return err
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
	a.logger.Info("Admin login successful", zap.String("username", username))
	return nil
}

// Logout удаляет cookie сессии.
func (a *Authenticator) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware пускает в /admin только с валидной сессией.
// Страницы перенаправляются на /login, WebSocket и JSON получают 401.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Set(ctxAdminUser, a.username)
			c.Next()
			return
		}
		if user, ok := a.Authenticate(c.Request); ok {
			c.Set(ctxAdminUser, user)
			c.Next()
			return
		}

		if wantsRedirect(c.Request) {
			target := "/login?next=" + url.QueryEscape(c.Request.URL.RequestURI())
			c.Redirect(http.StatusSeeOther, target)
		} else {
			c.Status(http.StatusUnauthorized)
		}
		c.Abort()
	}
}

// Authenticate возвращает пользователя сессии из запроса.
func (a *Authenticator) Authenticate(r *http.Request) (string, bool) {
	if !a.Enabled() {
		return a.username, true
	}
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	claims, err := a.ParseToken(cookie.Value)
	if err != nil {
		a.logger.Debug("Session rejected", zap.Error(err))
		return "", false
	}
	return claims.Subject, true
}

// CurrentUser - логин админа текущего запроса.
func CurrentUser(c *gin.Context) string {
	return c.GetString(ctxAdminUser)
}

func wantsRedirect(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	return !strings.Contains(r.Header.Get("Accept"), "application/json")
}

// SafeNext оставляет только локальные пути для редиректа после входа.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/admin"
	}
	return next
}
