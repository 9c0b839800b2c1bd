package webview

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/qlinetech/qcode/model"
)

// Page names a view of the panel.
type Page string

const (
	PageChat     Page = "chat"
	PageChanges  Page = "changes"
	PageHistory  Page = "history"
	PageSettings Page = "settings"
)

// Pages lists every page in navigation order.
var Pages = []Page{PageChat, PageChanges, PageHistory, PageSettings}

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageTemplates = func() map[Page]*template.Template {
	tmpls := make(map[Page]*template.Template, len(Pages))
	for _, p := range Pages {
		tmpls[p] = template.Must(template.New("layout").ParseFS(templateFS,
			"templates/layout.html", fmt.Sprintf("templates/%s.html", p)))
	}
	return tmpls
}()

func staticAssets() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// ParsePage validates a page name.
func ParsePage(name string) (Page, error) {
	for _, p := range Pages {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown page %q", name)
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderMarkdown converts chat text to HTML. Raw HTML in the input is
// not passed through.
func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

type chatEntry struct {
	Role string
	HTML template.HTML
}

type setting struct {
	Key, Value string
}

// pageData is bound to every template render.
type pageData struct {
	Title     string
	Page      Page
	Pages     []Page
	StyleURI  string
	ScriptURI string
	LogoURI   string
	Error     string

	Chat     []chatEntry
	Preview  string
	Summary  *model.Summary
	History  []HistoryItem
	Settings []setting
}

func sortedSettings(m map[string]string) []setting {
	out := make([]setting, 0, len(m))
	for k, v := range m {
		out = append(out, setting{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func renderPage(data pageData) (string, error) {
	tmpl, ok := pageTemplates[data.Page]
	if !ok {
		return "", fmt.Errorf("unknown page %q", data.Page)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("failed to render %s page: %w", data.Page, err)
	}
	return buf.String(), nil
}
