// Package site holds the public page content and the HTML templates.
package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

//go:embed pages/*.md
var pageFiles embed.FS

// Page is one markdown-backed informational page.
type Page struct {
	Slug  string
	Path  string
	Title string
	// InNavigation places the page in the header menu.
	InNavigation bool
}

var pages = []Page{
	{Slug: "start", Path: "/", Title: ""},
	{Slug: "ueber-uns", Path: "/ueber-uns", Title: "Über uns", InNavigation: true},
	{Slug: "leistungen", Path: "/leistungen", Title: "Leistungen", InNavigation: true},
	{Slug: "nachhaltigkeit", Path: "/nachhaltigkeit", Title: "Nachhaltigkeit", InNavigation: true},
	{Slug: "referenzen", Path: "/referenzen", Title: "Referenzen", InNavigation: true},
	{Slug: "impressum", Path: "/impressum", Title: "Impressum"},
	{Slug: "datenschutz", Path: "/datenschutz", Title: "Datenschutz"},
	{Slug: "agb", Path: "/agb", Title: "AGB"},
}

// markdown escapes raw HTML in page sources; WithUnsafe is deliberately absent.
var markdown = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Pages returns the informational pages in menu order.
func Pages() []Page {
	return append([]Page(nil), pages...)
}

// Navigation returns the pages shown in the header menu.
func Navigation() []Page {
	nav := make([]Page, 0, len(pages))
	for _, page := range pages {
		if page.InNavigation {
			nav = append(nav, page)
		}
	}
	return nav
}

// RenderMarkdown converts markdown to HTML with raw HTML escaped.
func RenderMarkdown(source []byte) (template.HTML, error) {
	var buffer bytes.Buffer
	if err := markdown.Convert(source, &buffer); err != nil {
		return "", err
	}
	return template.HTML(buffer.String()), nil
}

func renderPageBodies() (map[string]template.HTML, error) {
	bodies := make(map[string]template.HTML, len(pages))
	for _, page := range pages {
		source, err := pageFiles.ReadFile("pages/" + page.Slug + ".md")
		if err != nil {
			return nil, fmt.Errorf("site: page %s: %w", page.Slug, err)
		}
		body, err := RenderMarkdown(source)
		if err != nil {
			return nil, fmt.Errorf("site: render %s: %w", page.Slug, err)
		}
		bodies[page.Slug] = body
	}
	return bodies, nil
}
