package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/auth"
	"github.com/mbonchek/patterning-web-v2/internal/client"
	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/messaging"
	"github.com/mbonchek/patterning-web-v2/internal/storage"
	"github.com/mbonchek/patterning-web-v2/internal/stream"
)

// RunArchive - чтение архива пакетных запусков.
type RunArchive interface {
	ListRuns(ctx context.Context, limit int) ([]storage.RunRecord, error)
	GetRun(ctx context.Context, id string) (generation.Snapshot, error)
}

// Deps - зависимости обработчиков. Archive, Publisher, Tokens и LoginLimiter необязательны.
type Deps struct {
	Backend      client.Backend
	Runs         *generation.Manager
	Archive      RunArchive
	Auth         *auth.Authenticator
	Publisher    messaging.EventPublisher
	Tokens       TokenCounter
	ShareHost    string
	LoginLimiter gin.HandlerFunc
	Logger       *zap.Logger
}

// Handler обслуживает публичную галерею и админку.
type Handler struct {
	backend      client.Backend
	runs         *generation.Manager
	archive      RunArchive
	auth         *auth.Authenticator
	publisher    messaging.EventPublisher
	tokens       TokenCounter
	consumer     *stream.Consumer
	shareHost    string
	loginLimiter gin.HandlerFunc
	logger       *zap.Logger
}

func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Publisher == nil {
		d.Publisher = messaging.NopPublisher{}
	}
	if d.Tokens == nil {
		d.Tokens = ApproxTokenCounter{}
	}
	if d.ShareHost == "" {
		d.ShareHost = "GiveVoice.to"
	}
	return &Handler{
		backend:      d.Backend,
		runs:         d.Runs,
		archive:      d.Archive,
		auth:         d.Auth,
		publisher:    d.Publisher,
		tokens:       d.Tokens,
		consumer:     stream.NewConsumer(d.Logger),
		shareHost:    d.ShareHost,
		loginLimiter: d.LoginLimiter,
		logger:       d.Logger.Named("Handler"),
	}
}

// RegisterRoutes регистрирует публичные маршруты, вход и группу /admin.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.gallery)
	router.GET("/pattern/word/:id", h.patternByID)

	login := []gin.HandlerFunc{h.loginSubmit}
	if h.loginLimiter != nil {
		login = append([]gin.HandlerFunc{h.loginLimiter}, login...)
	}
	router.GET("/login", h.loginPage)
	router.POST("/login", login...)
	router.POST("/logout", h.logout)

	admin := router.Group("/admin", h.auth.Middleware())
	{
		admin.GET("", h.dashboard)

		admin.GET("/library", h.library)
		admin.GET("/library/manage", h.managePage)
		admin.POST("/library/manage", h.manageSubmit)

		admin.GET("/prompts", h.prompts)
		admin.GET("/prompts/new", h.newPrompt)
		admin.POST("/prompts/new", h.createPrompt)
		admin.GET("/prompts/:id", h.editPrompt)
		admin.POST("/prompts/:id/save", h.savePrompt)
		admin.POST("/prompts/:id/test", h.testPrompt)
		admin.GET("/prompts/:id/activate", h.activateConfirm)
		admin.POST("/prompts/:id/activate", h.activatePrompt)

		admin.GET("/voice", h.voiceLab)
		admin.POST("/voice/runs", h.startRun)
		admin.GET("/voice/runs/:id", h.runSnapshot)
		admin.GET("/voice/runs/:id/ws", h.runFeed)
		admin.POST("/voice/runs/:id/cancel", h.cancelRun)
		admin.GET("/voice/archive/:id", h.archivedRun)

		admin.GET("/test-brief", h.briefLab)
		admin.POST("/test-brief", h.briefLabSubmit)
		admin.GET("/test-image", h.imageLab)
		admin.POST("/test-image", h.imageLabSubmit)
		admin.GET("/pattern-play", h.patternPlay)
		admin.POST("/pattern-play", h.patternPlaySubmit)

		admin.GET("/branching", h.branching)
		admin.POST("/branching", h.branchSubmit)

		admin.GET("/patterns/:id/trace", h.trace)
	}

	// /:word конфликтует с остальными маршрутами в дереве gin, поэтому слово разбирается в NoRoute.
	router.NoRoute(h.noRoute)
}

// render добавляет к данным страницы общие поля layout.
func (h *Handler) render(c *gin.Context, status int, page string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	admin := strings.HasPrefix(c.Request.URL.Path, "/admin")
	data["Admin"] = admin
	if admin {
		data["User"] = auth.CurrentUser(c)
	}
	if _, ok := data["Flash"]; !ok {
		data["Flash"] = h.auth.PopFlash(c)
	}
	c.HTML(status, page, data)
}

// publish отправляет событие консоли; ошибка только логируется.
func (h *Handler) publish(c *gin.Context, event messaging.ConsoleEvent) {
	event.Actor = auth.CurrentUser(c)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.Error("Failed to publish console event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
