package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-intake/pkg/intake"
)

//go:embed templates/*.html
var templateFS embed.FS

// displayLayout is how receipt times are shown in the admin panel
const displayLayout = "02/01/2006 15:04"

var templateFuncs = template.FuncMap{
	"label":          label,
	"display":        display,
	"formatDatetime": formatDatetime,
	"add":            func(a, b int) int { return a + b },
}

// label turns a field or form name into a heading: "nome_pet" -> "Nome pet"
func label(name string) string {
	s := strings.NewReplacer("_", " ", "-", " ").Replace(name)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func display(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		if t == "" {
			return "-"
		}
		return t
	case []string:
		return strings.Join(t, ", ")
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, display(p))
		}
		return strings.Join(parts, ", ")
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	}
	return fmt.Sprint(v)
}

func formatDatetime(raw string) string {
	if raw == "" {
		return "N/A"
	}
	for _, layout := range []string{intake.DatetimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(displayLayout)
		}
	}
	return raw
}

// Pages renders the embedded HTML templates
type Pages struct {
	tmpl   *template.Template
	forms  intake.Forms
	logger *slog.Logger
}

// NewPages parses the embedded templates
func NewPages(forms intake.Forms, logger *slog.Logger) (*Pages, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.New("pages").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Pages{tmpl: tmpl, forms: forms, logger: logger}, nil
}

type pageData struct {
	Title string
}

type indexPage struct {
	pageData
	Forms []intake.FormSpec
}

type formPage struct {
	pageData
	Form  intake.FormSpec
	Token string
	Error string
}

type errorPage struct {
	pageData
	Message string
}

// Render executes a template into a buffer first so a failing template
// never leaves a half-written response
func (p *Pages) Render(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		p.logger.Error("Failed to render template", "template", name, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// RenderError renders the error page
func (p *Pages) RenderError(w http.ResponseWriter, status int, message string) {
	p.Render(w, status, "error.html", errorPage{
		pageData: pageData{Title: http.StatusText(status)},
		Message:  message,
	})
}

// Index lists the available forms
func (p *Pages) Index(w http.ResponseWriter, r *http.Request) {
	forms := make([]intake.FormSpec, 0, len(p.forms))
	for _, name := range p.forms.Names() {
		forms = append(forms, p.forms[name])
	}
	p.Render(w, http.StatusOK, "index.html", indexPage{
		pageData: pageData{Title: "Formulários"},
		Forms:    forms,
	})
}

// ThankYou is the landing page after a submission
func (p *Pages) ThankYou(w http.ResponseWriter, r *http.Request) {
	p.Render(w, http.StatusOK, "thank_you.html", pageData{Title: "Obrigado"})
}

// Form renders the page of one form with a fresh idempotency token
func (p *Pages) Form(form intake.FormSpec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.RenderForm(w, http.StatusOK, form, "")
	}
}

// RenderForm renders a form page, optionally with an error message
func (p *Pages) RenderForm(w http.ResponseWriter, status int, form intake.FormSpec, message string) {
	p.Render(w, status, "form.html", formPage{
		pageData: pageData{Title: label(form.Name)},
		Form:     form,
		Token:    uuid.NewString(),
		Error:    message,
	})
}

// NotFound renders the 404 page
func (p *Pages) NotFound(w http.ResponseWriter, r *http.Request) {
	p.RenderError(w, http.StatusNotFound, "Página não encontrada")
}
