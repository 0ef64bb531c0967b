// Package prompt assembles the system prompt handed to the SQL assistant.
package prompt

import (
	_ "embed"
	"strings"
)

const (
	DefaultAssistantName = "Ghimmohmoh"
	DefaultDialect       = "Snowflake"
)

//go:embed system_prompt.tmpl
var systemPromptTemplate string

// Template fills the fixed instruction text. Zero fields fall back to the
// defaults.
type Template struct {
	AssistantName string
	Dialect       string
}

// Assemble substitutes the context document into the template with the
// default assistant name and dialect.
func Assemble(context string) string {
	return Template{}.Assemble(context)
}

func (t Template) Assemble(context string) string {
	name := strings.TrimSpace(t.AssistantName)
	if name == "" {
		name = DefaultAssistantName
	}
	dialect := strings.TrimSpace(t.Dialect)
	if dialect == "" {
		dialect = DefaultDialect
	}
	// A single pass, so placeholders inside context are left alone.
	return strings.NewReplacer(
		"{{assistant}}", name,
		"{{dialect}}", dialect,
		"{{context}}", context,
	).Replace(systemPromptTemplate)
}
