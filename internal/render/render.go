// Package render turns records into text for copying, downloading and export.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/muse/internal/record"
)

// Text returns the clipboard form of r.
func Text(r record.Record) string {
	switch v := r.(type) {
	case record.Idea:
		return fmt.Sprintf("Title: %s\n\nDescription: %s", v.Title, v.Description)
	case record.OptimizedCaption:
		return fmt.Sprintf("Caption:\n%s\n\nHashtags:\n%s", v.Caption, strings.Join(v.Hashtags, " "))
	case record.RepurposedItem:
		return v.Content
	default:
		return ""
	}
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Download returns a file base name (without extension) and the text-file form of r.
func Download(r record.Record) (name, data string) {
	switch v := r.(type) {
	case record.Idea:
		return strings.ToLower(nonAlnum.ReplaceAllString(v.Title, "_")),
			fmt.Sprintf("Content Idea\n\nTitle: %s\n\nDescription: %s", v.Title, v.Description)
	case record.OptimizedCaption:
		return "optimized_caption",
			fmt.Sprintf("Optimized Caption:\n\n%s\n\nSuggested Hashtags:\n%s", v.Caption, strings.Join(v.Hashtags, " "))
	case record.RepurposedItem:
		return "repurposed_" + string(v.Format),
			fmt.Sprintf("Format: %s\n\n%s", v.Format, v.Content)
	default:
		return "record", ""
	}
}

// PlainText renders doc as the text-file form of its records, in order.
func PlainText(doc Document) string {
	if len(doc.Records) == 0 {
		return ""
	}
	parts := make([]string, len(doc.Records))
	for i, r := range doc.Records {
		_, parts[i] = Download(r)
	}
	return strings.Join(parts, "\n\n---\n\n") + "\n"
}

// Document is a set of records rendered together, such as one generation.
type Document struct {
	Title     string
	Mode      string
	CreatedAt time.Time
	Records   []record.Record
}

// Markdown renders doc as a Markdown document.
func Markdown(doc Document) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	if doc.Mode != "" || !doc.CreatedAt.IsZero() {
		var meta []string
		if doc.Mode != "" {
			meta = append(meta, "**Mode:** "+doc.Mode)
		}
		if !doc.CreatedAt.IsZero() {
			meta = append(meta, "**Created:** "+doc.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
		}
		b.WriteString(strings.Join(meta, " | "))
		b.WriteString("\n\n")
	}

	if len(doc.Records) == 0 {
		b.WriteString("_No content._\n")
		return b.String()
	}

	for i, r := range doc.Records {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		writeRecord(&b, r)
	}
	return b.String()
}

func writeRecord(b *strings.Builder, r record.Record) {
	switch v := r.(type) {
	case record.Idea:
		fmt.Fprintf(b, "## %s\n\n%s\n", v.Title, v.Description)
	case record.OptimizedCaption:
		fmt.Fprintf(b, "## Optimized Caption\n\n%s\n", v.Caption)
		if len(v.Hashtags) > 0 {
			fmt.Fprintf(b, "\n**Suggested Hashtags:** %s\n", strings.Join(v.Hashtags, " "))
		}
	case record.RepurposedItem:
		fmt.Fprintf(b, "## %s\n\n%s\n", v.Format.Label(), strings.TrimRight(v.Content, "\n"))
	}
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownToHTML converts Markdown to an HTML fragment. Raw HTML in the
// input is omitted.
func MarkdownToHTML(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<main>
{{.Body}}
</main>
</body>
</html>
`))

// HTML renders doc as a standalone HTML page.
func HTML(doc Document) (string, error) {
	body, err := MarkdownToHTML(Markdown(doc))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := page.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{doc.Title, body}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
