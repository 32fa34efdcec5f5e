// Package report renders query results and fetch-attempt summaries.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	"text/template"

	"github.com/FranksOps/serper/internal/serp"
	"gopkg.in/yaml.v3"
)

// Format selects an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
	FormatHTML Format = "html"
)

// ParseFormat maps a flag value onto a Format. The empty string selects JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case "yml":
		return FormatYAML, nil
	case FormatJSON, FormatYAML, FormatText, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("context: unknown format %q", s)
	}
}

// Write renders res in the given format.
func Write(w io.Writer, format Format, res *serp.SEResult) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, res)
	case FormatYAML:
		return WriteYAML(w, res)
	case FormatText:
		return WriteText(w, res)
	case FormatHTML:
		return WriteHTML(w, res)
	default:
		return fmt.Errorf("context: unknown format %q", format)
	}
}

// WriteJSON writes res as indented JSON.
func WriteJSON(w io.Writer, res *serp.SEResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

// WriteYAML writes res as YAML.
func WriteYAML(w io.Writer, res *serp.SEResult) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

var textTmpl = template.Must(template.New("results").Funcs(funcs).Parse(`Query: {{.Query}}
Pages: {{.NrPages}}
{{- range $i, $page := .Pages}}

Page {{inc $i}}
{{- range $page.OrganicResults}}
  {{.Position}}. {{.Title}}
     {{.Link}}
{{- if .DisplayedLink}}
     {{.DisplayedLink}}
{{- end}}
{{- if .Snippet}}
     {{.Snippet}}
{{- end}}
{{- else}}
  No results
{{- end}}
{{- end}}
`))

// WriteText writes a human-readable listing of res.
func WriteText(w io.Writer, res *serp.SEResult) error {
	if err := textTmpl.Execute(w, res); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

var htmlTmpl = htmltemplate.Must(htmltemplate.New("results").Funcs(htmltemplate.FuncMap(funcs)).Parse(`<!DOCTYPE html>
<html>
<head>
<title>Results for {{.Query}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; max-width: 800px; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .result { margin: 16px 0; }
  .result a { font-size: 18px; color: #1a0dab; text-decoration: none; }
  .cite { color: #006621; font-size: 14px; }
  .pos { color: #999; margin-right: 6px; }
</style>
</head>
<body>
  <h1>{{.Query}}</h1>
  <p>{{.NrPages}} page(s)</p>
  {{- range $i, $page := .Pages}}
  <h3>Page {{inc $i}}</h3>
  {{- range $page.OrganicResults}}
  <div class="result">
    <span class="pos">{{.Position}}</span><a href="{{.Link}}">{{.Title}}</a>
    <div class="cite">{{.DisplayedLink}}</div>
    <div>{{.Snippet}}</div>
  </div>
  {{- else}}
  <p>No results</p>
  {{- end}}
  {{- end}}
</body>
</html>
`))

// WriteHTML writes res as a standalone HTML page. Result text is escaped.
func WriteHTML(w io.Writer, res *serp.SEResult) error {
	if err := htmlTmpl.Execute(w, res); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}
