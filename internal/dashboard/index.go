package dashboard

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexData struct {
	RefreshSeconds int
	PageSize       int
}

// Index serves the dashboard page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	data := indexData{
		RefreshSeconds: int(h.config.Dashboard.RefreshInterval.Seconds()),
		PageSize:       h.config.Dashboard.PageSize,
	}
	if err := indexTemplate.Execute(w, data); err != nil {
		h.logger.WithError(err).Error("Failed to render dashboard page")
	}
}
