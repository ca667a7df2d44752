// Package render builds the HTML pages served to the reviewer.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"github.com/oleg578/localturk"
)

var entities = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// HTMLEntities escapes &, <, > and double quotes.
func HTMLEntities(s string) string {
	return entities.Replace(s)
}

var placeholder = regexp.MustCompile(`\$\{([^}]*)\}`)

// Interpolate replaces every ${key} in tmpl with data[key]. Unknown keys
// expand to nothing. Substituted values are not scanned again.
func Interpolate(tmpl string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		return data[m[2:len(m)-1]]
	})
}

// templateData returns the substitutions for a task: every field escaped,
// plus ALL_JSON (escaped, indented) and ALL_JSON_RAW.
func templateData(task localturk.RowObject) (map[string]string, error) {
	raw, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent task: %w", err)
	}
	data := make(map[string]string, task.Len()+2)
	for k, v := range task.Fields() {
		data[k] = HTMLEntities(v)
	}
	data["ALL_JSON"] = HTMLEntities(indented.String())
	data["ALL_JSON_RAW"] = string(raw)
	return data, nil
}

type field struct {
	Name, Value string
}

type pageData struct {
	Completed int
	Total     int
	Notice    string
	Fields    []field
	Body      template.HTML
}

var page = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<title>{{.Completed}} / {{.Total}} - localturk</title>
<body><form action="/submit" method="post">
<p>{{.Completed}} / {{.Total}}</p>
{{- if .Notice}}
<p class="notice">{{.Notice}}</p>
{{- end}}
{{range .Fields}}<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{end -}}
{{.Body}}
<hr/><input type="submit" />
</form>
</body>
</html>
`))

// TaskPage renders the form for task. tmpl is the user's template; it is
// interpolated with the task's escaped values. The task's own fields are
// carried as hidden inputs so they are submitted with the answer.
func TaskPage(tmpl string, task localturk.RowObject, completed, total int, notice string) (string, error) {
	data, err := templateData(task)
	if err != nil {
		return "", err
	}
	pd := pageData{
		Completed: completed,
		Total:     total,
		Notice:    notice,
		Body:      template.HTML(Interpolate(tmpl, data)), //nolint:gosec // The template is trusted local input.
	}
	for k, v := range task.Fields() {
		pd.Fields = append(pd.Fields, field{Name: k, Value: v})
	}
	var buf bytes.Buffer
	if err := page.Execute(&buf, pd); err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return buf.String(), nil
}

// StubTemplate returns a starter template showing every column.
func StubTemplate(columns []string) string {
	var b strings.Builder
	for i, c := range columns {
		if i > 0 {
			b.WriteString("<br>\n")
		}
		fmt.Fprintf(&b, "%s: ${%s}", HTMLEntities(c), c)
	}
	b.WriteString(`

<!--
Use named form elements to generate output as desired.
Use data-key="x" to set a keyboard shortcut for buttons.
-->
<input type="text" size="80" name="notes" placeholder="Notes go here">
<input type="submit" name="result" data-key="a" value="Class A">
<input type="submit" name="result" data-key="b" value="Class B">
`)
	return b.String()
}

// ClassifyTemplate returns a template with one submit button per label and
// an undo form, around the image in the task's path column. maxWidth limits
// the image width when positive.
func ClassifyTemplate(labels []string, maxWidth int) string {
	var b strings.Builder
	for i, label := range labels {
		if i > 0 {
			b.WriteString("&nbsp;")
		}
		fmt.Fprintf(&b, `<button type="submit" data-key="%d" name="label" value="%s">%s</button>`,
			i+1, HTMLEntities(label), HTMLEntities(fmt.Sprintf("%s (%d)", label, i+1)))
	}
	b.WriteString(`
</form>
<form action="/delete-last" method="POST" style="display: inline-block">
  <input type="submit" id="undo-button" data-key="z" value="Undo Last (z)">
</form>
`)
	width := ""
	if maxWidth > 0 {
		width = fmt.Sprintf(` width="%d"`, maxWidth)
	}
	fmt.Fprintf(&b, `<p><img src="${path}"%s></p>
<style>
  form { display: inline-block; }
  #undo-button { margin-left: 20px; }
</style>
`, width)
	return b.String()
}
