// Package uistatic renders the read-only viewer page for the system prompt.
package uistatic

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed viewer.html
var viewerHTML string

var viewer = template.Must(template.New("viewer").Parse(viewerHTML))

type Page struct {
	AssistantName string
	Table         string
	SystemPrompt  string
}

// Render writes page as HTML. The prompt is escaped and shown verbatim.
func Render(w http.ResponseWriter, page Page) error {
	var buf bytes.Buffer
	if err := viewer.Execute(&buf, page); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}
