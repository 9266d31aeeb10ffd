package ui

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names understood by Templates.
const (
	PageTemplate         = "index.html"
	ConversationTemplate = "conversation"
	ConfigErrorTemplate  = "config_error.html"
)

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.New("pages").ParseFS(templateFS, "templates/*.html")
}

// ConfigErrorView feeds the configuration error page.
type ConfigErrorView struct {
	Title  string
	Detail string
	Hint   string
}

func NewConfigErrorView() ConfigErrorView {
	return ConfigErrorView{Title: ConfigErrorTitle, Detail: ConfigErrorDetail, Hint: ConfigErrorHint}
}
