package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/fieldstate/internal/activity"
	"github.com/matthewbaird/fieldstate/internal/definition"
	"github.com/matthewbaird/fieldstate/internal/engine"
	"github.com/matthewbaird/fieldstate/internal/logging"
	"github.com/matthewbaird/fieldstate/internal/metrics"
	"github.com/matthewbaird/fieldstate/internal/session"
)

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	Definition string       `json:"definition"`
	Format     string       `json:"format,omitempty"` // default yaml
	Values     []FieldValue `json:"values,omitempty"`
}

// FieldValue sets the first field matching Field inside Context.
type FieldValue struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Context string `json:"context,omitempty"`
}

// EvaluateResponse reports the evaluated form.
type EvaluateResponse struct {
	Form        string              `json:"form,omitempty"`
	Fields      []engine.FieldState `json:"fields"`
	Diagnostics []string            `json:"diagnostics"`
}

// SessionResponse reports a live session.
type SessionResponse struct {
	ID          string              `json:"id"`
	Form        string              `json:"form,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	Fields      []engine.FieldState `json:"fields"`
	Diagnostics []string            `json:"diagnostics"`
}

// HistoryResponse is one page of a session's transition history.
type HistoryResponse struct {
	Entries    []activity.Entry `json:"entries"`
	NextCursor string           `json:"next_cursor,omitempty"`
	Total      int              `json:"total"`
}

// Handler serves the REST endpoints.
type Handler struct {
	sessions *session.Manager
	store    activity.Store
	log      *slog.Logger
}

// NewHandler creates a REST handler.
func NewHandler(sessions *session.Manager, store activity.Store, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		store:    store,
		log:      logging.WithComponent(logger, "api"),
	}
}

// Evaluate builds a definition, applies the given values and reports every
// field. Nothing is kept between requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		metrics.RecordEvaluation("invalid_body")
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	for i, v := range req.Values {
		if v.Field == "" {
			metrics.RecordEvaluation("invalid_body")
			writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("values[%d]: field is required", i))
			return
		}
	}
	format := definition.FormatYAML
	if req.Format != "" {
		f, err := definition.ParseFormat(req.Format)
		if err != nil {
			metrics.RecordEvaluation("invalid_format")
			writeError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error())
			return
		}
		format = f
	}
	def, err := definition.Parse([]byte(req.Definition), format)
	if err != nil {
		metrics.RecordEvaluation("invalid_definition")
		writeError(w, http.StatusUnprocessableEntity, "INVALID_DEFINITION", err.Error())
		return
	}
	built, err := def.Build()
	if err != nil {
		metrics.RecordEvaluation("invalid_definition")
		writeError(w, http.StatusUnprocessableEntity, "INVALID_DEFINITION", err.Error())
		return
	}

	e := built.Engine(engine.Config{
		OnDiagnostic: metrics.RecordDiagnostic,
		Logger:       h.log.With(logging.RequestIDKey, requestIDFrom(r.Context())),
	})
	e.Initialise("", "")
	for _, v := range req.Values {
		e.SetFieldValue(v.Field, v.Value, v.Context)
	}

	resp := EvaluateResponse{
		Form:        def.Name,
		Fields:      e.Snapshot(),
		Diagnostics: []string{},
	}
	for _, err := range e.Diagnostics() {
		resp.Diagnostics = append(resp.Diagnostics, err.Error())
	}
	metrics.RecordEvaluation("ok")
	writeJSON(w, http.StatusOK, resp)
}

// GetSession reports a live session's fields.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		ID:          s.ID,
		Form:        s.Form,
		CreatedAt:   s.CreatedAt,
		Fields:      s.Snapshot(),
		Diagnostics: s.Diagnostics(),
	})
}

// DeleteSession ends a live session and drops its history.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.sessions.Remove(s.ID)
	if err := h.store.DeleteScope(r.Context(), s.ID); err != nil {
		h.log.Error("deleting history", logging.SessionKey, s.ID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// History returns a session's transitions, newest first. History outlives
// the session itself, so unknown ids yield an empty page.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	opts := activity.DefaultQueryOptions()
	opts.FieldID = r.URL.Query().Get("field")
	opts.Cursor = r.URL.Query().Get("cursor")
	opts.Limit = parsePageSize(r, opts.Limit, 500)
	if states := r.URL.Query().Get("state"); states != "" {
		opts.States = strings.Split(states, ",")
	}
	var ok bool
	if opts.Since, ok = parseTime(r, "since"); !ok {
		writeError(w, http.StatusBadRequest, "INVALID_TIME", "since must be RFC 3339")
		return
	}
	if opts.Until, ok = parseTime(r, "until"); !ok {
		writeError(w, http.StatusBadRequest, "INVALID_TIME", "until must be RFC 3339")
		return
	}

	entries, next, total, err := h.store.QueryByScope(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		h.log.Error("querying history", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, NextCursor: next, Total: total})
}

// Search matches transition summaries across sessions.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "MISSING_QUERY", "q is required")
		return
	}
	opts := activity.DefaultSearchOptions()
	opts.Scope = r.URL.Query().Get("session")
	opts.Limit = parsePageSize(r, opts.Limit, 100)
	var ok bool
	if opts.Since, ok = parseTime(r, "since"); !ok {
		writeError(w, http.StatusBadRequest, "INVALID_TIME", "since must be RFC 3339")
		return
	}

	entries, total, err := h.store.Search(r.Context(), q, opts)
	if err != nil {
		h.log.Error("searching history", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Total: total})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return nil, false
	}
	return s, true
}
