package web

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hpungsan/muse/internal/config"
	"github.com/hpungsan/muse/internal/credit"
	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/generate"
	"github.com/hpungsan/muse/internal/ops"
	"github.com/hpungsan/muse/internal/prefs"
	"github.com/hpungsan/muse/internal/record"
	"github.com/hpungsan/muse/internal/render"
)

// maxBodyBytes caps generate request bodies.
const maxBodyBytes = 1 << 20

// Handlers contains HTTP route handlers for the API.
type Handlers struct {
	db      *sql.DB
	cfg     *config.Config
	tools   *generate.Toolset
	account credit.Account
	log     *slog.Logger
}

// generateRequest is the body of POST /api/generate/{mode}.
type generateRequest struct {
	Settings prefs.Preferences `json:"settings"`
	Draft    string            `json:"draft,omitempty"`
	Source   string            `json:"source,omitempty"`
	Formats  []string          `json:"formats,omitempty"`
}

// HandleCredits handles GET /api/credits.
func (h *Handlers) HandleCredits(w http.ResponseWriter, r *http.Request) {
	status, err := ops.Credits(r.Context(), h.account)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, status)
}

// HandleGenerate handles POST /api/generate/{mode}. The response is NDJSON:
// one {"record": ...} line per record as it arrives, then a final
// {"result": ...} or {"error": ...} line.
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	mode, err := generate.ModeByName(r.PathValue("mode"))
	if err != nil {
		renderError(w, err)
		return
	}

	var body generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		renderError(w, errors.NewInvalidRequest(fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	out := newNDJSONWriter(w)
	emit := func(rec record.Record) {
		env, err := record.Wrap(rec)
		if err != nil {
			h.log.Error("encode record", "error", err)
			return
		}
		if err := out.line(http.StatusOK, map[string]any{"record": env}); err != nil {
			h.log.Debug("client write failed", "error", err)
		}
	}

	result, err := ops.Generate(r.Context(), h.tools, ops.GenerateInput{
		Mode:        mode.Name,
		Preferences: body.Settings,
		Draft:       body.Draft,
		Source:      body.Source,
		Formats:     body.Formats,
	}, emit)
	if err != nil {
		status, errBody := errorBody(err)
		_ = out.line(status, errBody)
		return
	}
	_ = out.line(http.StatusOK, map[string]any{"result": result})
}

// HandleHistory handles GET /api/history.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	result, err := ops.History(r.Context(), h.db, ops.HistoryInput{
		Mode:   r.URL.Query().Get("mode"),
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleShow handles GET /api/history/{id}.
func (h *Handlers) HandleShow(w http.ResponseWriter, r *http.Request) {
	g, err := ops.Show(r.Context(), h.db, r.PathValue("id"))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, g)
}

// HandleShowHTML handles GET /api/history/{id}/html, rendering the
// generation as a standalone page.
func (h *Handlers) HandleShowHTML(w http.ResponseWriter, r *http.Request) {
	g, err := ops.Show(r.Context(), h.db, r.PathValue("id"))
	if err != nil {
		renderError(w, err)
		return
	}
	doc, err := ops.Document(g)
	if err != nil {
		renderError(w, err)
		return
	}
	page, err := render.HTML(doc)
	if err != nil {
		renderError(w, errors.NewInternal(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
