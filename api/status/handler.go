package status

import (
	"bytes"
	"net/http"

	"github.com/kilianp07/smartcharge/core/vehiclestatus"
	"github.com/kilianp07/smartcharge/pkg/export"
)

var contentTypes = map[string]string{
	"":     "application/json",
	"json": "application/json",
	"yaml": "application/yaml",
	"csv":  "text/csv",
	"text": "text/plain; charset=utf-8",
}

// NewHandler returns an HTTP handler exposing the latest controller report via
// GET /api/status. The format query parameter selects json (default), yaml,
// csv or text.
func NewHandler(store vehiclestatus.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		format := r.URL.Query().Get("format")
		ct, ok := contentTypes[format]
		if !ok {
			http.Error(w, "unknown format", http.StatusBadRequest)
			return
		}
		rep, ok := store.Latest()
		if !ok {
			http.Error(w, "no status yet", http.StatusServiceUnavailable)
			return
		}
		if format == "" {
			format = "json"
		}
		var buf bytes.Buffer
		if err := export.Write(&buf, format, rep); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", ct)
		_, _ = buf.WriteTo(w)
	})
}
