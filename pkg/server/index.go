package server

import (
	"embed"
	"net/http"
)

//go:embed web/index.html
var webFS embed.FS

// handleIndex serves the embedded chat page. The page is a pure
// presentation client of /stream and /status; everything else 404s.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "index unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}
