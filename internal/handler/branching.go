package handler

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/messaging"
	"github.com/mbonchek/patterning-web-v2/internal/metrics"
	"github.com/mbonchek/patterning-web-v2/internal/models"
	"github.com/mbonchek/patterning-web-v2/internal/stream"
)

// TreeRow - узел дерева ветвлений в плоском списке таблицы.
type TreeRow struct {
	Node  *models.LineageNode
	Depth int
}

// Indent - отступ строки в em.
func (r TreeRow) Indent() float64 {
	return 0.5 + float64(r.Depth)*1.25
}

func flattenTree(t models.LineageTree) []TreeRow {
	var rows []TreeRow
	t.Walk(func(n *models.LineageNode, depth int) bool {
		rows = append(rows, TreeRow{Node: n, Depth: depth})
		return true
	})
	return rows
}

// BranchResult - итог ветвления, собранный из потока.
type BranchResult struct {
	PatternID string
	Error     string
	Progress  generation.Progress
}

func branchingPath(node string) string {
	if node == "" {
		return "/admin/branching"
	}
	return "/admin/branching?node=" + url.QueryEscape(node)
}

func (h *Handler) branching(c *gin.Context) {
	h.renderBranching(c, http.StatusOK, nil)
}

func (h *Handler) renderBranching(c *gin.Context, status int, result *BranchResult) {
	data := gin.H{
		"Tree":     nil,
		"Rows":     []TreeRow{},
		"Selected": (*models.LineageNode)(nil),
		"Pipeline": generation.Pipeline,
		"Confirm":  nil,
		"Result":   result,
		"Error":    "",
	}
	tree, err := h.backend.LineageTree(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load lineage tree", zap.Error(err))
		data["Error"] = userMessage(err)
		h.render(c, http.StatusBadGateway, "branching.html", data)
		return
	}
	data["Tree"] = tree
	data["Rows"] = flattenTree(tree)

	node := tree.Find(c.Query("node"))
	if node == nil {
		node = tree.Find(c.PostForm("node"))
	}
	data["Selected"] = node

	if code := c.Query("from"); code != "" && node != nil && result == nil {
		step, ok := generation.StepByCode(code)
		if !ok || step.Code == "seed" {
			data["Error"] = "Unknown branch point " + code
		} else {
			name := node.Word
			if name == "" {
				name = node.ID
			}
			data["Confirm"] = &confirmation{
				Title:   "Branch from " + step.Label + "?",
				Message: "A new pattern will be generated from “" + name + "”, regenerating " + step.Label + " and every later step.",
				Action:  "/admin/branching",
				Fields:  map[string]string{"node": node.ID, "from": step.Code},
				Button:  "Create branch",
				Cancel:  branchingPath(node.ID),
			}
		}
	}
	h.render(c, status, "branching.html", data)
}

// branchSubmit запускает ветвление и дочитывает поток до конца в рамках запроса.
func (h *Handler) branchSubmit(c *gin.Context) {
	node := c.PostForm("node")
	step, ok := generation.StepByCode(c.PostForm("from"))
	if !ok || step.Code == "seed" {
		h.fail(c, branchingPath(node), "branch", models.ErrInvalidInput)
		return
	}
	if err := confirmed(c); err != nil {
		h.fail(c, branchingPath(node)+"&from="+url.QueryEscape(step.Code), "branch", err)
		return
	}

	ctx := c.Request.Context()
	log := h.logger.With(zap.String("node", node), zap.String("branch_point", step.Code))
	progress := generation.NewProgress(h.branchWord(ctx, node))
	var streamErr error
	_ = h.consumer.Run(ctx,
		func(ctx context.Context) (io.ReadCloser, error) {
			return h.backend.StreamBranch(ctx, node, step.Code)
		},
		stream.Handlers{
			OnUpdate: func(ev stream.Event) { progress = generation.ReduceProgress(progress, ev) },
			OnError:  func(err error) { streamErr = err },
		},
	)
	metrics.AdminAction("branch", streamErr)

	result := &BranchResult{PatternID: progress.PatternID, Progress: progress}
	if streamErr != nil {
		log.Warn("Branch failed", zap.Error(streamErr))
		result.Error = userMessage(streamErr)
		h.renderBranching(c, http.StatusOK, result)
		return
	}
	log.Info("Branch created", zap.String("pattern_id", progress.PatternID))

	if inv, ok := h.backend.(generation.CacheInvalidator); ok {
		_ = inv.InvalidatePatterns(ctx)
	}
	h.publish(c, messaging.ConsoleEvent{
		Type:      messaging.EventBranchCreated,
		PatternID: progress.PatternID,
		Action:    step.Code,
		Words:     []string{progress.Word},
	})
	h.renderBranching(c, http.StatusOK, result)
}

// branchWord возвращает слово узла, а если дерево недоступно или слова нет - его id.
func (h *Handler) branchWord(ctx context.Context, nodeID string) string {
	tree, err := h.backend.LineageTree(ctx)
	if err != nil {
		h.logger.Warn("Failed to load lineage tree", zap.String("node", nodeID), zap.Error(err))
		return nodeID
	}
	if n := tree.Find(nodeID); n != nil && n.Word != "" {
		return n.Word
	}
	return nodeID
}
