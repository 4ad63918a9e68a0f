package email

import (
	"bytes"
	"html"
	htmltemplate "html/template"
	"strings"
)

// Footer is appended to every rendered HTML body.
const Footer = "Bu e-posta mailqueue kuyruğu üzerinden gönderilmiştir."

var layout = htmltemplate.Must(htmltemplate.New("layout").Parse(
	`<!DOCTYPE html><html><body>` +
		`{{if .Subject}}<h2>{{.Subject}}</h2>{{end}}` +
		`{{range .Paragraphs}}<p>{{range $i, $line := .}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>{{end}}` +
		`<p style="color:#888;font-size:12px">{{.Footer}}</p>` +
		`</body></html>`,
))

type layoutData struct {
	Subject    string
	Paragraphs [][]string
	Footer     string
}

// RenderHTML wraps plain text in the fixed HTML layout. Blank lines split
// paragraphs and single newlines become <br>. Output depends only on the
// arguments.
func RenderHTML(subject, text string) string {
	var buf bytes.Buffer
	data := layoutData{
		Subject:    subject,
		Paragraphs: paragraphs(text),
		Footer:     Footer,
	}
	if err := layout.Execute(&buf, data); err != nil {
		return "<p>" + html.EscapeString(text) + "</p>"
	}
	return buf.String()
}

func paragraphs(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out [][]string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.Trim(block, "\n")
		if strings.TrimSpace(block) == "" {
			continue
		}
		out = append(out, strings.Split(block, "\n"))
	}
	return out
}
