package server

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed static/index.html
var static embed.FS

var indexTmpl = template.Must(template.ParseFS(static, "static/index.html"))

type indexData struct {
	Genres []string
	Voice  string
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, indexData{Genres: s.genres, Voice: s.voice}); err != nil {
		s.logger.Error("Could not render page", "err", err)
	}
}
