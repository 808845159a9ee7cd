package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/simple-intake/pkg/intake"
)

const (
	// TokenField is the form field carrying the idempotency token
	TokenField = "idempotency_token"
	// TokenHeader is the header alternative to TokenField
	TokenHeader = "Idempotency-Key"

	// ThankYouPath is where accepted submissions are redirected
	ThankYouPath = "/thank-you"

	defaultMultipartMemory = 32 << 20
)

// FormsHandler accepts the public form posts
type FormsHandler struct {
	pipeline  *intake.Pipeline
	forms     intake.Forms
	pages     *Pages
	maxMemory int64
	logger    *slog.Logger
}

// NewFormsHandler creates a new forms handler
func NewFormsHandler(pipeline *intake.Pipeline, forms intake.Forms, pages *Pages, logger *slog.Logger) *FormsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FormsHandler{
		pipeline:  pipeline,
		forms:     forms,
		pages:     pages,
		maxMemory: defaultMultipartMemory,
		logger:    logger,
	}
}

// RegisterRoutes adds GET and POST /<form> for every form
func (h *FormsHandler) RegisterRoutes(r chi.Router) {
	for _, name := range h.forms.Names() {
		form := h.forms[name]
		r.Get("/"+name, h.pages.Form(form))
		r.Post("/"+name, h.Submit(form))
	}
}

// Submit handles a post of form
func (h *FormsHandler) Submit(form intake.FormSpec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(h.maxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				h.pages.RenderError(w, http.StatusRequestEntityTooLarge, "Arquivo muito grande")
				return
			}
			h.logger.Error("Failed to parse form", "form", form.Name, "err", err)
			h.pages.RenderError(w, http.StatusBadRequest, "Formulário inválido")
			return
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}

		receipt, err := h.pipeline.Submit(r.Context(), form, submissionFromRequest(r, form))
		if err != nil {
			var validationErr *intake.ValidationError
			if errors.As(err, &validationErr) {
				h.pages.RenderForm(w, http.StatusBadRequest, form, "Preencha o campo "+label(validationErr.Field))
				return
			}
			h.logger.Error("Failed to accept submission", "form", form.Name, "err", err)
			h.pages.RenderError(w, http.StatusInternalServerError, "Não foi possível salvar o envio. Tente novamente.")
			return
		}

		if receipt.Duplicate {
			h.logger.Debug("Duplicate submission redirected", "form", form.Name)
		}
		http.Redirect(w, r, ThankYouPath, http.StatusSeeOther)
	}
}

// submissionFromRequest reads a parsed request into a Submission
func submissionFromRequest(r *http.Request, form intake.FormSpec) intake.Submission {
	sub := intake.Submission{
		Token:      r.FormValue(TokenField),
		Values:     map[string][]string{},
		Files:      map[string][]intake.Upload{},
		RemoteAddr: r.RemoteAddr,
	}
	if sub.Token == "" {
		sub.Token = r.Header.Get(TokenHeader)
	}

	for _, field := range form.Fields {
		if values, ok := r.Form[field.Name]; ok {
			sub.Values[field.Name] = values
		}
	}

	if r.MultipartForm != nil {
		for _, field := range form.Files {
			for _, fh := range r.MultipartForm.File[field.Name] {
				sub.Files[field.Name] = append(sub.Files[field.Name], intake.FromFileHeader(fh))
			}
		}
	}
	return sub
}
