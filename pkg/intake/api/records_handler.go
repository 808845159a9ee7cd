package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-intake/pkg/intake"
)

const maxRecordsLimit = 500

// RecordsHandler exposes stored records as JSON for integrations
type RecordsHandler struct {
	store  intake.Store
	forms  intake.Forms
	logger *slog.Logger
}

// NewRecordsHandler creates a new records handler
func NewRecordsHandler(store intake.Store, forms intake.Forms, logger *slog.Logger) *RecordsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordsHandler{store: store, forms: forms, logger: logger}
}

// Routes returns the routes for the records API
func (h *RecordsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{collection}/records", h.List)
	r.Get("/{collection}/records/{id}", h.Get)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type listResponse struct {
	Collection string          `json:"collection"`
	Count      int             `json:"count"`
	Records    []intake.Record `json:"records"`
}

// List returns the newest records of a collection. ?pending=<field> keeps
// only records where the field is still empty.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if !h.known(collection) {
		writeError(w, r, http.StatusNotFound, "unknown collection")
		return
	}

	query := intake.ListQuery{Newest: true, Limit: 50}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit > maxRecordsLimit {
			limit = maxRecordsLimit
		}
		query.Limit = limit
	}
	query.NullField = r.URL.Query().Get("pending")

	records, err := h.store.List(r.Context(), collection, query)
	if err != nil {
		h.logger.Error("Failed to list records", "collection", collection, "err", err)
		writeError(w, r, http.StatusBadGateway, "content backend unavailable")
		return
	}
	if records == nil {
		records = []intake.Record{}
	}

	render.JSON(w, r, listResponse{Collection: collection, Count: len(records), Records: records})
}

// Get returns one record
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	if !h.known(collection) {
		writeError(w, r, http.StatusNotFound, "unknown collection")
		return
	}

	record, err := h.store.Get(r.Context(), collection, id)
	if err != nil {
		if errors.Is(err, intake.ErrRecordNotFound) {
			writeError(w, r, http.StatusNotFound, "record not found")
			return
		}
		h.logger.Error("Failed to get record", "collection", collection, "id", id, "err", err)
		writeError(w, r, http.StatusBadGateway, "content backend unavailable")
		return
	}

	render.JSON(w, r, record)
}

func (h *RecordsHandler) known(collection string) bool {
	for _, c := range h.forms.Collections() {
		if c == collection {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: message})
}
