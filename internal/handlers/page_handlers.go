package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"lumen-backend/pkg/httputil"
)

var mobileAgents = []string{"iphone", "android", "mobile"}

// PageHandler serves the single-page front end from the static dir.
type PageHandler struct {
	staticDir string
}

func NewPageHandler(staticDir string) *PageHandler {
	return &PageHandler{staticDir: staticDir}
}

// HandleIndex handles GET /, picking mobile.html for phone user agents.
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	page := "index.html"
	ua := strings.ToLower(r.UserAgent())
	for _, m := range mobileAgents {
		if strings.Contains(ua, m) {
			page = "mobile.html"
			break
		}
	}

	path := filepath.Join(h.staticDir, page)
	if _, err := os.Stat(path); err != nil {
		httputil.RespondError(w, http.StatusNotFound, page+" not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, path)
}
