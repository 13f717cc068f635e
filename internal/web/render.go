package web

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"

	"github.com/hpungsan/muse/internal/errors"
)

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorBody is the JSON form of an error. Details of INTERNAL errors are
// never exposed.
func errorBody(err error) (int, map[string]any) {
	var mErr *errors.MuseError
	if !stderrors.As(err, &mErr) {
		mErr = errors.NewInternal(err)
		mErr.Message = "an internal error occurred"
	}

	obj := map[string]any{
		"code":    string(mErr.Code),
		"message": mErr.Message,
		"status":  mErr.Status,
	}
	if mErr.Code != errors.ErrInternal && mErr.Details != nil {
		obj["details"] = mErr.Details
	}
	return mErr.Status, map[string]any{"error": obj}
}

// renderError writes err as a JSON error response.
func renderError(w http.ResponseWriter, err error) {
	status, body := errorBody(err)
	renderJSON(w, status, body)
}

// ndjsonWriter writes one JSON value per line, flushing after each. The
// status is sent with the first line, so an error before any record keeps
// its own status code.
type ndjsonWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	enc     *json.Encoder
	started bool
}

func newNDJSONWriter(w http.ResponseWriter) *ndjsonWriter {
	return &ndjsonWriter{w: w, enc: json.NewEncoder(w)}
}

func (n *ndjsonWriter) line(status int, v any) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		n.w.Header().Set("Content-Type", "application/x-ndjson")
		n.w.Header().Set("Cache-Control", "no-store")
		n.w.WriteHeader(status)
		n.started = true
	}
	if err := n.enc.Encode(v); err != nil {
		return err
	}
	if f, ok := n.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
