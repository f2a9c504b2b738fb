package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/models"
	"github.com/mbonchek/patterning-web-v2/internal/storage"
)

const (
	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Время ожидания pong от клиента.
	pongWait = 60 * time.Second
	// Период пингов, меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Клиент ничего не присылает, кроме control-фреймов.
	maxMessageSize = 512

	voiceLabArchivedRuns = 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     sameOrigin,
}

// sameOrigin пускает только страницы консоли: cookie сессии уходит с любого origin.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

func runPath(id string) string {
	return "/admin/voice?run=" + url.QueryEscape(id)
}

// archivedRuns читает архив; без архива или при ошибке возвращает nil.
func (h *Handler) archivedRuns(ctx context.Context, limit int) []storage.RunRecord {
	if h.archive == nil {
		return nil
	}
	runs, err := h.archive.ListRuns(ctx, limit)
	if err != nil {
		h.logger.Warn("Failed to list archived runs", zap.Error(err))
		return nil
	}
	return runs
}

// lookupRun ищет пакет в памяти, затем в архиве.
func (h *Handler) lookupRun(ctx context.Context, id string) (generation.Snapshot, bool, error) {
	if b, ok := h.runs.Get(id); ok {
		return b.Snapshot(), true, nil
	}
	if h.archive == nil {
		return generation.Snapshot{}, false, generation.ErrRunNotFound
	}
	snap, err := h.archive.GetRun(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return generation.Snapshot{}, false, generation.ErrRunNotFound
	}
	return snap, false, err
}

func (h *Handler) voiceLab(c *gin.Context) {
	h.renderVoiceLab(c, c.Query("run"), false)
}

func (h *Handler) archivedRun(c *gin.Context) {
	h.renderVoiceLab(c, c.Param("id"), true)
}

func (h *Handler) renderVoiceLab(c *gin.Context, runID string, archivedOnly bool) {
	ctx := c.Request.Context()
	live := h.runs.List()

	// архивные пакеты, которые еще в памяти, показываются один раз
	inMemory := make(map[string]bool, len(live))
	for _, s := range live {
		inMemory[s.ID] = true
	}
	var archived []storage.RunRecord
	for _, r := range h.archivedRuns(ctx, voiceLabArchivedRuns) {
		if !inMemory[r.ID] {
			archived = append(archived, r)
		}
	}

	data := gin.H{
		"Runs":     live,
		"Archived": archived,
		"Words":    "",
		"Run":      nil,
		"Live":     false,
		"Selected": 0,
		"Entry":    nil,
		"Error":    "",
	}
	if runID == "" {
		h.render(c, http.StatusOK, "voicelab.html", data)
		return
	}

	var (
		snap   generation.Snapshot
		isLive bool
		err    error
	)
	if archivedOnly && h.archive != nil {
		snap, err = h.archive.GetRun(ctx, runID)
		if errors.Is(err, models.ErrNotFound) {
			err = generation.ErrRunNotFound
		}
	} else {
		snap, isLive, err = h.lookupRun(ctx, runID)
	}
	if err != nil {
		if errors.Is(err, generation.ErrRunNotFound) {
			h.notFound(c)
			return
		}
		h.logger.Error("Failed to load run", zap.String("batch_id", runID), zap.Error(err))
		data["Error"] = userMessage(err)
		h.render(c, http.StatusBadGateway, "voicelab.html", data)
		return
	}

	selected, _ := strconv.Atoi(c.Query("i"))
	if selected < 0 || selected >= len(snap.Entries) {
		selected = 0
	}
	data["Run"] = snap
	data["Live"] = isLive
	data["Selected"] = selected
	if len(snap.Entries) > 0 {
		data["Entry"] = snap.Entries[selected]
	}
	h.render(c, http.StatusOK, "voicelab.html", data)
}

// startRun запускает пакет в фоне и сразу открывает его страницу.
func (h *Handler) startRun(c *gin.Context) {
	words := generation.ParseWords(c.PostForm("words"))
	b, err := h.runs.Start(words)
	if err != nil {
		if errors.Is(err, generation.ErrNoWords) {
			h.auth.SetFlash(c, "error", "Enter at least one word")
			c.Redirect(http.StatusSeeOther, "/admin/voice")
			return
		}
		h.fail(c, "/admin/voice", "start_run", err)
		return
	}
	h.logger.Info("Voice Lab run started", zap.String("batch_id", b.ID()), zap.Int("words", len(words)))
	c.Redirect(http.StatusSeeOther, runPath(b.ID()))
}

// runSnapshot отдает состояние пакета в JSON.
func (h *Handler) runSnapshot(c *gin.Context) {
	snap, _, err := h.lookupRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, generation.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) cancelRun(c *gin.Context) {
	id := c.Param("id")
	if err := h.runs.Cancel(id); err != nil {
		h.fail(c, "/admin/voice", "cancel_run", err)
		return
	}
	h.succeed(c, runPath(id), "Cancelling run")
}

// runFeed шлет снимки пакета по WebSocket, пока пакет не завершится или клиент не уйдет.
func (h *Handler) runFeed(c *gin.Context) {
	id := c.Param("id")
	b, ok := h.runs.Get(id)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		h.logger.Warn("Failed to upgrade connection", zap.String("batch_id", id), zap.Error(err))
		return
	}
	log := h.logger.With(zap.String("batch_id", id))
	log.Debug("Run feed connected")

	snapshots, unsubscribe := b.Subscribe()
	defer unsubscribe()

	// читатель нужен для control-фреймов и обнаружения закрытия
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		log.Debug("Run feed closed")
	}()

	for {
		select {
		case snap, ok := <-snapshots:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				log.Error("Failed to marshal snapshot", zap.Error(err))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug("Run feed write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
