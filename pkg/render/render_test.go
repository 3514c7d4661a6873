package render_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/render"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pages = fstest.MapFS{
	"layout.html": {Data: []byte(`{{define "layout"}}[{{.User.Username}}]{{template "content" .}}{{end}}`)},
	"_shout.html": {Data: []byte(`{{define "shout"}}{{.}}!{{end}}`)},
	"hello.html":  {Data: []byte(`{{define "content"}}{{template "shout" .Data}}{{if hasPerm .User "app.can_edit"}} edit{{end}}{{end}}`)},
	"error.html":  {Data: []byte(`{{define "content"}}{{.Data.Code}} {{.Data.Message}}{{end}}`)},
}

func newEcho(t *testing.T) *echo.Echo {
	t.Helper()
	r, err := render.New(pages)
	require.NoError(t, err)
	e := echo.New()
	e.Renderer = r
	e.HTTPErrorHandler = render.ErrorHandler(zap.NewNop())
	return e
}

func TestRenderer_Render(t *testing.T) {
	t.Parallel()
	e := newEcho(t)
	e.GET("/", func(c echo.Context) error {
		p := auth.Principal{Username: "ann", Permissions: []string{"app.can_edit"}}
		req := c.Request()
		c.SetRequest(req.WithContext(auth.WithPrincipal(req.Context(), p)))
		return c.Render(http.StatusOK, "hello.html", "hi")
	})
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[ann]hi! edit", w.Body.String())
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	t.Parallel()
	e := newEcho(t)
	e.GET("/", func(c echo.Context) error {
		return c.Render(http.StatusOK, "missing.html", nil)
	})
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "[]500 Internal Server Error", w.Body.String())
}

func TestErrorHandler(t *testing.T) {
	t.Parallel()
	e := newEcho(t)
	e.GET("/gone", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "No book matches the given query.")
	})
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/gone", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "[]404 No book matches the given query.", w.Body.String())
}

func TestMust(t *testing.T) {
	t.Parallel()
	broken := fstest.MapFS{
		"layout.html": {Data: []byte(`{{define "layout"}}{{end}}`)},
		"bad.html":    {Data: []byte(`{{define "content"}}{{.Unclosed`)},
	}
	require.Panics(t, func() { render.Must(render.New(broken)) })
}
