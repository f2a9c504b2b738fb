package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin/render"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// общие шаблоны, которые подключаются к каждой странице
var sharedTemplates = []string{"templates/layout.html", "templates/partials.html"}

// Static - файловая система /static.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Renderer реализует render.HTMLRender: каждая страница собирается вместе с layout.
type Renderer struct {
	pages  map[string]*template.Template
	logger *zap.Logger
}

// NewRenderer разбирает все страницы заранее; ошибка шаблона - ошибка запуска.
func NewRenderer(logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Renderer{pages: map[string]*template.Template{}, logger: logger.Named("Renderer")}

	files, err := fs.Glob(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	funcs := FuncMap()
	for _, file := range files {
		if isShared(file) {
			continue
		}
		name := path.Base(file)
		patterns := append(append([]string{}, sharedTemplates...), file)
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS, patterns...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	r.logger.Info("Templates loaded", zap.Int("pages", len(r.pages)))
	return r, nil
}

func isShared(file string) bool {
	for _, s := range sharedTemplates {
		if s == file {
			return true
		}
	}
	return false
}

// Instance отдает страницу name, обернутую в layout.
func (r *Renderer) Instance(name string, data any) render.Render {
	t, ok := r.pages[name]
	if !ok {
		r.logger.Error("Template not found", zap.String("template", name))
		t = r.pages["404.html"]
	}
	return render.HTML{Template: t, Name: "layout", Data: data}
}

// Has сообщает, есть ли страница с таким именем.
func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM, extension.Typographer))

// Markdown рендерит текст паттерна. Сырой HTML во входе экранируется.
func Markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func FuncMap() template.FuncMap {
	return template.FuncMap{
		"markdown":   Markdown,
		"stepLabel":  generation.StepLabel,
		"fieldLabel": models.FieldLabel,
		"truncate":   truncate,
		"fmtTime":    fmtTime,
		"ms":         func(d time.Duration) int64 { return d.Milliseconds() },
		"prettyJSON": prettyJSON,
		"toJSON":     toJSON,
		"add":        func(a, b int) int { return a + b },
		"lower":      strings.ToLower,
		"upper":      strings.ToUpper,
		"join":       strings.Join,
		"shareURL":   ShareURL,
		"statusClass": func(s any) string {
			switch fmt.Sprint(s) {
			case "success", "complete":
				return "ok"
			case "error":
				return "err"
			case "processing", "in-progress":
				return "busy"
			default:
				return "idle"
			}
		},
	}
}

// ShareURL - публичная ссылка вида GiveVoice.to/<word>.
func ShareURL(host, word string) string {
	return strings.TrimRight(host, "/") + "/" + strings.ToLower(strings.TrimSpace(word))
}

func truncate(n int, s string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func prettyJSON(v any) string {
	var raw []byte
	switch x := v.(type) {
	case json.RawMessage:
		raw = x
	case []byte:
		raw = x
	case string:
		raw = []byte(x)
	default:
		return toJSON(v)
	}
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func toJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
