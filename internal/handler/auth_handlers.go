package handler

import (
	"errors"
	"net/http"
	"time"

	rateli "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/auth"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

// NewLoginLimiter ограничивает попытки входа по IP. С Redis лимит общий для всех реплик.
func NewLoginLimiter(redisClient *redis.Client, limit uint, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	var store rateli.Store
	if redisClient != nil {
		store = rateli.RedisStore(&rateli.RedisOptions{
			RedisClient: redisClient,
			Rate:        window,
			Limit:       limit,
		})
	} else {
		store = rateli.InMemoryStore(&rateli.InMemoryOptions{
			Rate:  window,
			Limit: limit,
		})
	}
	return rateli.RateLimiter(store, &rateli.Options{
		ErrorHandler: func(c *gin.Context, info rateli.Info) {
			logger.Warn("Login rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
			)
			c.HTML(http.StatusTooManyRequests, "login.html", gin.H{
				"Error":    "Too many login attempts. Try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
				"Next":     auth.SafeNext(c.PostForm("next")),
				"Username": c.PostForm("username"),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}

func (h *Handler) loginPage(c *gin.Context) {
	next := auth.SafeNext(c.Query("next"))
	if _, ok := h.auth.Authenticate(c.Request); ok && h.auth.Enabled() {
		c.Redirect(http.StatusSeeOther, next)
		return
	}
	h.render(c, http.StatusOK, "login.html", gin.H{"Next": next, "Username": "", "Error": ""})
}

func (h *Handler) loginSubmit(c *gin.Context) {
	username := c.PostForm("username")
	next := auth.SafeNext(c.PostForm("next"))

	if err := h.auth.Login(c, username, c.PostForm("password")); err != nil {
		msg := "Invalid username or password"
		if !errors.Is(err, models.ErrInvalidCredentials) {
			h.logger.Error("Login failed", zap.Error(err))
			msg = "Internal error while signing in"
		}
		h.render(c, http.StatusUnauthorized, "login.html", gin.H{"Next": next, "Username": username, "Error": msg})
		return
	}
	c.Redirect(http.StatusSeeOther, next)
}

func (h *Handler) logout(c *gin.Context) {
	h.auth.Logout(c)
	h.logger.Info("Admin logged out", zap.String("ip", c.ClientIP()))
	c.Redirect(http.StatusSeeOther, "/login")
}
