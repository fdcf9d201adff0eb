package service

import (
	"strings"
	"text/template"

	"meos/internal/domain"
)

var promptTemplate = template.Must(template.New("prompt").Parse(
	`{{if .Sources -}}
Use the following excerpts from my journal, goals and notes to answer the question.
If they do not contain the answer, say that you don't know.

{{range .Sources}}[{{.Chunk.Category}}] {{.Chunk.ID}}
{{.Chunk.Text}}

{{end}}
{{- else -}}
No relevant notes were found for this question, so there is no context to ground the answer.
Say so, then answer from general knowledge if you can.

{{end -}}
Question: {{.Query}}
Answer:`))

func renderPrompt(query string, sources []domain.SearchResult) (string, error) {
	var b strings.Builder
	err := promptTemplate.Execute(&b, struct {
		Query   string
		Sources []domain.SearchResult
	}{query, sources})
	return b.String(), err
}
