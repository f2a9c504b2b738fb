package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/metrics"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

const maxErrorBody = 512

type backendClient struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	logger       *zap.Logger
}

// NewBackendClient создает клиент API генерации.
// Обычные запросы ограничены timeout; потоки живут, пока жив ctx.
func NewBackendClient(baseURL string, timeout time.Duration, logger *zap.Logger) (Backend, error) {
	base := NormalizeBaseURL(baseURL)
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base URL for pattern backend: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backendClient{
		baseURL:      base,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		logger:       logger.Named("BackendClient"),
	}, nil
}

// NormalizeBaseURL убирает завершающий "/" и "/api": все пути клиента уже начинаются с /api.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	base = strings.TrimSuffix(base, "/api")
	return strings.TrimRight(base, "/")
}

// jsonID отправляет числовые id числом, остальные строкой.
func jsonID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func (c *backendClient) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do выполняет JSON-запрос и возвращает тело успешного ответа.
func (c *backendClient) do(ctx context.Context, op, method, path string, query url.Values, body any, header http.Header) ([]byte, error) {
	reqURL := c.url(path, query)
	log := c.logger.With(zap.String("op", op), zap.String("url", reqURL))

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			log.Error("Failed to marshal request body", zap.Error(err))
			return nil, fmt.Errorf("internal error marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		log.Error("Failed to create HTTP request", zap.Error(err))
		return nil, fmt.Errorf("internal error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.BackendRequest(op, err, time.Since(start).Seconds())
		log.Error("HTTP request failed", zap.Error(err))
		return nil, fmt.Errorf("failed to communicate with pattern backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.BackendRequest(op, err, time.Since(start).Seconds())
		log.Error("Failed to read response body", zap.Int("status", resp.StatusCode), zap.Error(err))
		return nil, fmt.Errorf("failed to read pattern backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Body: errorBody(respBody)}
		metrics.BackendRequest(op, apiErr, time.Since(start).Seconds())
		log.Warn("Received non-OK status", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
		return nil, apiErr
	}

	metrics.BackendRequest(op, nil, time.Since(start).Seconds())
	log.Debug("Backend request completed", zap.Int("status", resp.StatusCode), zap.Duration("latency", time.Since(start)))
	return respBody, nil
}

// openStream выполняет запрос к SSE-эндпоинту. При неуспешном статусе тело не читается дальше ошибки.
func (c *backendClient) openStream(ctx context.Context, op, method, path string, body any) (io.ReadCloser, error) {
	reqURL := c.url(path, nil)
	log := c.logger.With(zap.String("op", op), zap.String("url", reqURL))

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			log.Error("Failed to marshal stream request body", zap.Error(err))
			return nil, fmt.Errorf("internal error marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		log.Error("Failed to create stream HTTP request", zap.Error(err))
		return nil, fmt.Errorf("internal error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.streamClient.Do(req)
	if err != nil {
		metrics.BackendRequest(op, err, time.Since(start).Seconds())
		log.Error("HTTP request for stream failed", zap.Error(err))
		return nil, fmt.Errorf("failed to communicate with pattern backend: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Body: errorBody(snippet)}
		metrics.BackendRequest(op, apiErr, time.Since(start).Seconds())
		log.Warn("Received non-OK status for stream", zap.Int("status", resp.StatusCode))
		return nil, apiErr
	}

	metrics.BackendRequest(op, nil, time.Since(start).Seconds())
	log.Debug("Stream opened", zap.Duration("latency", time.Since(start)))
	return resp.Body, nil
}

// errorBody достает текст ошибки из JSON {"error": ...} или возвращает обрезанное тело.
func errorBody(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error"); msg.Exists() {
			if msg.IsObject() {
				return msg.Get("message").String()
			}
			return msg.String()
		}
		if msg := gjson.GetBytes(body, "message"); msg.Exists() {
			return msg.String()
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}

func wordPath(format, word string) string {
	return fmt.Sprintf(format, url.PathEscape(strings.ToLower(strings.TrimSpace(word))))
}

// --- Patterns ---

func (c *backendClient) History(ctx context.Context) ([]models.Pattern, error) {
	// бэкенд и прокси кешируют историю, поэтому запрос всегда уникален
	query := url.Values{"t": {strconv.FormatInt(time.Now().UnixMilli(), 10)}}
	header := http.Header{"Cache-Control": {"no-cache"}}
	body, err := c.do(ctx, "history", http.MethodGet, "/api/history", query, nil, header)
	if err != nil {
		return nil, err
	}
	return DecodePatternList(body)
}

func (c *backendClient) ListPatterns(ctx context.Context) ([]models.Pattern, error) {
	body, err := c.do(ctx, "list_patterns", http.MethodGet, "/api/patterns", nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodePatternList(body)
}

func (c *backendClient) GetPattern(ctx context.Context, id string) (models.Pattern, error) {
	body, err := c.do(ctx, "get_pattern", http.MethodGet, "/api/patterns/"+url.PathEscape(id), nil, nil, nil)
	if err != nil {
		return models.Pattern{}, err
	}
	return DecodePattern(body)
}

func (c *backendClient) GetPatternByWord(ctx context.Context, word string) (models.Pattern, error) {
	body, err := c.do(ctx, "get_word", http.MethodGet, wordPath("/api/word/%s", word), nil, nil, nil)
	if err != nil {
		return models.Pattern{}, err
	}
	return DecodePattern(body)
}

func (c *backendClient) GenerateWord(ctx context.Context, word string) (models.Pattern, error) {
	body, err := c.do(ctx, "generate_word", http.MethodPost, wordPath("/api/word/%s", word), nil, struct{}{}, nil)
	if err != nil {
		return models.Pattern{}, err
	}
	return DecodePattern(body)
}

func (c *backendClient) StreamGenerate(ctx context.Context, word string) (io.ReadCloser, error) {
	return c.openStream(ctx, "stream_generate", http.MethodPost, wordPath("/api/word/%s/generate", word), nil)
}

func (c *backendClient) StreamWord(ctx context.Context, word string) (io.ReadCloser, error) {
	return c.openStream(ctx, "stream_word", http.MethodGet, wordPath("/api/word/%s/stream", word), nil)
}

func (c *backendClient) ManagePattern(ctx context.Context, id string, action models.ManageAction) error {
	payload := map[string]any{"id": jsonID(id), "action": string(action)}
	body, err := c.do(ctx, "manage_pattern", http.MethodPost, "/api/admin/manage-pattern", nil, payload, nil)
	if err != nil {
		return err
	}
	if res := gjson.GetBytes(body, "success"); res.Exists() && !res.Bool() {
		return fmt.Errorf("manage pattern %s: %s", action, errorBody(body))
	}
	return nil
}

// --- Prompts ---

func (c *backendClient) ListPrompts(ctx context.Context) ([]models.Prompt, error) {
	body, err := c.do(ctx, "list_prompts", http.MethodGet, "/api/prompts", nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodePromptList(body)
}

func (c *backendClient) GetPrompt(ctx context.Context, slug string) (models.Prompt, error) {
	body, err := c.do(ctx, "get_prompt", http.MethodGet, "/api/prompts/"+url.PathEscape(slug), nil, nil, nil)
	if err != nil {
		return models.Prompt{}, err
	}
	return DecodePrompt(body)
}

func (c *backendClient) GetPromptVersion(ctx context.Context, id string) (models.Prompt, error) {
	body, err := c.do(ctx, "get_prompt_version", http.MethodGet, "/api/admin/prompts/"+url.PathEscape(id), nil, nil, nil)
	if err != nil {
		return models.Prompt{}, err
	}
	return DecodePrompt(body)
}

func (c *backendClient) CreatePromptVersion(ctx context.Context, slug string, p models.Prompt) (models.Prompt, error) {
	p.ID = ""
	p.Slug = slug
	body, err := c.do(ctx, "create_prompt", http.MethodPost, "/api/prompts/"+url.PathEscape(slug), nil, p, nil)
	if err != nil {
		return models.Prompt{}, err
	}
	return DecodePrompt(body)
}

func (c *backendClient) UpdatePromptVersion(ctx context.Context, id string, p models.Prompt) (models.Prompt, error) {
	p.ID = id
	body, err := c.do(ctx, "update_prompt", http.MethodPut, "/api/prompts/"+url.PathEscape(id), nil, p, nil)
	if err != nil {
		return models.Prompt{}, err
	}
	return DecodePrompt(body)
}

func (c *backendClient) ActivatePrompt(ctx context.Context, id, slug string) error {
	payload := map[string]any{"id": jsonID(id), "slug": slug}
	_, err := c.do(ctx, "activate_prompt", http.MethodPost, "/api/admin/prompts/activate", nil, payload, nil)
	return err
}

// --- Labs ---

// exchange отправляет запрос лаборатории и извлекает результат по первому найденному пути.
func (c *backendClient) exchange(ctx context.Context, op, path string, payload any, outputPaths ...string) (LabExchange, error) {
	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return LabExchange{}, fmt.Errorf("internal error marshaling request: %w", err)
	}
	start := time.Now()
	body, err := c.do(ctx, op, http.MethodPost, path, nil, json.RawMessage(reqBytes), nil)
	ex := LabExchange{Request: reqBytes, Duration: time.Since(start)}
	if err != nil {
		return ex, err
	}
	ex.Response = body

	if msg := gjson.GetBytes(body, "error"); msg.Exists() && msg.String() != "" {
		return ex, fmt.Errorf("%s: %s", op, errorBody(body))
	}
	for _, p := range outputPaths {
		if r := gjson.GetBytes(body, p); r.Exists() {
			ex.Output = textValue(r)
			break
		}
	}
	return ex, nil
}

func (c *backendClient) PlaygroundTest(ctx context.Context, req PlaygroundRequest) (LabExchange, error) {
	return c.exchange(ctx, "playground_test", "/api/playground/test", req, "output", "result", "content", "text")
}

func (c *backendClient) GenerateBrief(ctx context.Context, req BriefRequest) (LabExchange, error) {
	return c.exchange(ctx, "generate_brief", "/api/generate-brief", req, "content", "brief", "image_brief", "output")
}

func (c *backendClient) GenerateImage(ctx context.Context, brief string) (LabExchange, error) {
	return c.exchange(ctx, "generate_image", "/api/generate-image", map[string]string{"brief": brief}, "image_url", "url", "data.0.url")
}

func (c *backendClient) GenerateVoicing(ctx context.Context, req VoicingRequest) (LabExchange, error) {
	return c.exchange(ctx, "generate_voicing", "/api/generate-voicing", req, "voicing", "content", "output")
}

func (c *backendClient) TestTemplate(ctx context.Context, req TemplateTestRequest) (LabExchange, error) {
	return c.exchange(ctx, "test_template", "/api/admin/generate", req, "output")
}

// --- Lineage ---

func (c *backendClient) LineageTree(ctx context.Context) (models.LineageTree, error) {
	body, err := c.do(ctx, "lineage_tree", http.MethodGet, "/api/patterns/lineage-tree", nil, nil, nil)
	if err != nil {
		return models.LineageTree{}, err
	}
	return DecodeLineageTree(body)
}

func (c *backendClient) StreamBranch(ctx context.Context, id, branchPoint string) (io.ReadCloser, error) {
	payload := map[string]any{"branch_point": branchPoint, "collect_trace": false}
	return c.openStream(ctx, "branch_pattern", http.MethodPost, "/api/pattern/"+url.PathEscape(id)+"/branch", payload)
}

// --- Analytics ---

func (c *backendClient) PatternTrace(ctx context.Context, id string) ([]generation.HTTPTrace, error) {
	body, err := c.do(ctx, "pattern_trace", http.MethodGet, "/api/pattern/"+url.PathEscape(id)+"/trace", nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodeTraces(body)
}

func (c *backendClient) RunsSummary(ctx context.Context) (models.RunsSummary, error) {
	body, err := c.do(ctx, "runs_summary", http.MethodGet, "/api/analytics/pattern-runs/summary", nil, nil, nil)
	if err != nil {
		return models.RunsSummary{}, err
	}
	return DecodeRunsSummary(body)
}

var _ Backend = (*backendClient)(nil)
