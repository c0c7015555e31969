// Package web holds the HTML templates and renders them by page name.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
)

//go:embed templates/*.html
var files embed.FS

const layout = "templates/base.html"

// Renderer executes one page template inside the shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses every page under templates/ against base.html.
func New() (*Renderer, error) {
	return parse(files)
}

func parse(fsys fs.FS) (*Renderer, error) {
	base, err := template.ParseFS(fsys, layout)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	names, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range names {
		if name == layout {
			continue
		}
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(fsys, name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[strings.TrimSuffix(path.Base(name), ".html")] = t
	}
	return r, nil
}

// Render writes page name to w.
func (r *Renderer) Render(w io.Writer, name string, data map[string]any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "base", data)
}

// Has reports whether a page exists.
func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}
