// Package web serves the HTML shell. Pages are static templates; all data
// flows through the JSON API and the note stream once the page is loaded.
package web

import (
	"embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler renders the app pages.
type Handler struct {
	templates *template.Template
	logger    *zap.Logger
}

func New(logger *zap.Logger) (*Handler, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{templates: templates, logger: logger}, nil
}

type pageData struct {
	Title string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var name string
	var data pageData
	switch r.URL.Path {
	case "/":
		name, data = "home.html", pageData{Title: "Inkstone"}
	case "/sign-in":
		name, data = "sign_in.html", pageData{Title: "Sign in · Inkstone"}
	case "/register":
		name, data = "register.html", pageData{Title: "Register · Inkstone"}
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("web: render page", zap.String("page", name), zap.Error(err))
	}
}
