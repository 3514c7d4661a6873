package render

import (
	"html/template"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Renderer renders page templates that share a common layout.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"date":    func(t time.Time) string { return t.Format("Jan 2, 2006 15:04") },
	"join":    strings.Join,
	"hasPerm": auth.HasPerm,
	"hasRole": auth.HasRole,
	"isOwner": auth.IsOwner,
}

// New parses every page of fsys together with layout.html and the partials
// (files starting with "_").
func New(fsys fs.FS) (*Renderer, error) {
	names, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return nil, err
	}
	shared := []string{"layout.html"}
	for _, name := range names {
		if strings.HasPrefix(name, "_") {
			shared = append(shared, name)
		}
	}
	r := &Renderer{pages: make(map[string]*template.Template, len(names))}
	for _, name := range names {
		if name == "layout.html" || strings.HasPrefix(name, "_") {
			continue
		}
		patterns := append(append([]string{}, shared...), name)
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(fsys, patterns...)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", name)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// Render executes the "layout" template of page name. Data is wrapped so that
// every page sees the current principal as .User.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return errors.Errorf("template %s not found", name)
	}
	p, _ := auth.FromContext(c.Request().Context())
	return tmpl.ExecuteTemplate(w, "layout", Page{User: p, Data: data})
}

// Must panics when New fails.
func Must(r *Renderer, err error) *Renderer {
	if err != nil {
		panic(err)
	}
	return r
}

type Page struct {
	User auth.Principal
	Data interface{}
}
