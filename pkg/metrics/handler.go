package metrics

import (
	"net/http"
	"strconv"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Handler serves tm in Prometheus text format. Only GET and HEAD are allowed.
func Handler(tm *ToolpathMetrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		output := tm.Gather()
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(output)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(output))
	})
}
