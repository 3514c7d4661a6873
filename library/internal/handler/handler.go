package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Astemirdum/bookshelf-service/library/internal/errs"
	"github.com/Astemirdum/bookshelf-service/library/internal/model"
	"github.com/Astemirdum/bookshelf-service/library/templates"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/identity"
	md "github.com/Astemirdum/bookshelf-service/pkg/middleware"
	"github.com/Astemirdum/bookshelf-service/pkg/render"
	"github.com/Astemirdum/bookshelf-service/pkg/validate"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	loginURL = "/login/"

	PermAddBook    = "relationship_app.can_add_book"
	PermChangeBook = "relationship_app.can_change_book"
	PermDeleteBook = "relationship_app.can_delete_book"
)

type Handler struct {
	librarySvc LibraryService
	identity   IdentityClient
	authn      md.Authenticator
	renderer   *render.Renderer
	validator  *validate.CustomValidator
	log        *zap.Logger
}

func New(librarySvc LibraryService, identity IdentityClient, authn md.Authenticator, log *zap.Logger) *Handler {
	return &Handler{
		librarySvc: librarySvc,
		identity:   identity,
		authn:      authn,
		log:        log,
		renderer:   render.Must(render.New(templates.Files)),
		validator:  validate.NewCustomValidator(),
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS  = 10
		pagesRPS = 100
	)
	md.Base(e)
	e.Renderer = h.renderer
	e.Validator = h.validator
	e.HTTPErrorHandler = render.ErrorHandler(h.log)

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	pages := e.Group("",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(pagesRPS),
		md.OptionalJwt(h.authn),
	)
	pages.GET("/", func(c echo.Context) error { return c.Redirect(http.StatusFound, "/books/") })
	pages.GET("/books/", h.ListBooks)
	pages.GET("/books/search/", h.SearchBooks)
	pages.GET("/library/:id/", h.LibraryDetail)

	pages.GET("/register/", h.RegisterForm)
	pages.POST("/register/", h.Register)
	pages.GET("/login/", h.LoginForm)
	pages.POST("/login/", h.Login)
	pages.POST("/logout/", h.Logout)

	pages.GET("/admin/", h.RoleView("admin_view.html"), md.RequireRole(auth.RoleAdmin, loginURL))
	pages.GET("/librarian/", h.RoleView("librarian_view.html"), md.RequireRole(auth.RoleLibrarian, loginURL))
	pages.GET("/member/", h.RoleView("member_view.html"), md.RequireRole(auth.RoleMember, loginURL))

	canAdd := md.RequirePerm(PermAddBook, loginURL)
	canChange := md.RequirePerm(PermChangeBook, loginURL)
	canDelete := md.RequirePerm(PermDeleteBook, loginURL)
	pages.GET("/books/add/", h.AddBookForm, canAdd)
	pages.POST("/books/add/", h.AddBook, canAdd)
	pages.GET("/books/:id/edit/", h.EditBookForm, canChange)
	pages.POST("/books/:id/edit/", h.EditBook, canChange)
	pages.GET("/books/:id/delete/", h.DeleteBookConfirm, canDelete)
	pages.POST("/books/:id/delete/", h.DeleteBook, canDelete)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "No book matches the given query.")
	}
	return id, nil
}

func (h *Handler) httpError(err error) error {
	if errors.Is(err, errs.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "No book matches the given query.")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// safeNext keeps redirects on this host.
func safeNext(next, fallback string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}

type booksPage struct {
	Books []model.Book
}

func (h *Handler) ListBooks(c echo.Context) error {
	books, err := h.librarySvc.ListBooks(c.Request().Context())
	if err != nil {
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "list_books.html", booksPage{Books: books})
}

func (h *Handler) LibraryDetail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "No library matches the given query.")
	}
	lib, err := h.librarySvc.GetLibrary(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "No library matches the given query.")
		}
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "library_detail.html", lib)
}

type searchPage struct {
	Form     model.SearchForm
	Errors   map[string][]string
	Searched bool
	Books    []model.Book
}

func (h *Handler) SearchBooks(c echo.Context) error {
	var page searchPage
	if len(c.QueryParams()) == 0 {
		return c.Render(http.StatusOK, "search.html", page)
	}
	page.Form.Query = c.QueryParam("query")
	if err := c.Validate(&page.Form); err != nil {
		page.Errors = h.validator.FieldErrors(err)
		return c.Render(http.StatusBadRequest, "search.html", page)
	}
	books, err := h.librarySvc.SearchBooks(c.Request().Context(), page.Form.Query)
	if err != nil {
		return h.httpError(err)
	}
	page.Searched = true
	page.Books = books
	return c.Render(http.StatusOK, "search.html", page)
}

func (h *Handler) RoleView(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.Render(http.StatusOK, name, nil)
	}
}

type formPage[T any] struct {
	Title  string
	Action string
	Form   T
	Errors map[string][]string
}

func (h *Handler) RegisterForm(c echo.Context) error {
	return c.Render(http.StatusOK, "register.html", formPage[model.RegisterForm]{})
}

func (h *Handler) Register(c echo.Context) error {
	page := formPage[model.RegisterForm]{}
	if err := c.Bind(&page.Form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&page.Form); err != nil {
		page.Errors = h.validator.FieldErrors(err)
		if _, ok := page.Errors["password2"]; ok && page.Form.Password2 != "" {
			page.Errors["password2"] = []string{"The two password fields didn't match."}
		}
		return c.Render(http.StatusBadRequest, "register.html", page)
	}

	_, err := h.identity.Register(c.Request().Context(), identity.RegisterRequest{
		Username: page.Form.Username,
		Email:    page.Form.Email,
		Password: page.Form.Password1,
	})
	if err != nil {
		var verr *identity.ValidationError
		switch {
		case errors.As(err, &verr):
			page.Errors = verr.Fields
			return c.Render(http.StatusBadRequest, "register.html", page)
		case errors.Is(err, identity.ErrConflict):
			page.Errors = map[string][]string{"username": {err.Error()}}
			return c.Render(http.StatusBadRequest, "register.html", page)
		case errors.Is(err, identity.ErrUnavailable):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return h.httpError(err)
	}
	return c.Redirect(http.StatusFound, loginURL)
}

func (h *Handler) LoginForm(c echo.Context) error {
	page := formPage[model.LoginForm]{Form: model.LoginForm{Next: c.QueryParam("next")}}
	return c.Render(http.StatusOK, "login.html", page)
}

func (h *Handler) Login(c echo.Context) error {
	page := formPage[model.LoginForm]{}
	if err := c.Bind(&page.Form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&page.Form); err != nil {
		page.Errors = h.validator.FieldErrors(err)
		return c.Render(http.StatusBadRequest, "login.html", page)
	}
	token, _, err := h.identity.Login(c.Request().Context(), page.Form.Username, page.Form.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			page.Errors = map[string][]string{"__all__": {err.Error()}}
			return c.Render(http.StatusUnauthorized, "login.html", page)
		case errors.Is(err, identity.ErrUnavailable):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return h.httpError(err)
	}
	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, safeNext(page.Form.Next, "/books/"))
}

func (h *Handler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, loginURL)
}

// bindBook binds and validates the book form. When it reports false the
// response has been written or err says why not. A publication year that is
// not a whole number is a field error, like any other invalid input.
func (h *Handler) bindBook(c echo.Context, page *formPage[model.BookForm]) (bool, error) {
	if err := c.Bind(&page.Form); err != nil {
		if _, convErr := strconv.Atoi(c.FormValue("publication_year")); convErr == nil {
			return false, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		page.Form = model.BookForm{Title: c.FormValue("title"), Author: c.FormValue("author")}
		page.Errors = h.validator.FieldErrors(c.Validate(&page.Form))
		if page.Errors == nil {
			page.Errors = make(map[string][]string)
		}
		page.Errors["publication_year"] = []string{"Enter a whole number."}
		return false, c.Render(http.StatusBadRequest, "book_form.html", page)
	}
	if err := c.Validate(&page.Form); err != nil {
		page.Errors = h.validator.FieldErrors(err)
		return false, c.Render(http.StatusBadRequest, "book_form.html", page)
	}
	return true, nil
}

func (h *Handler) AddBookForm(c echo.Context) error {
	return c.Render(http.StatusOK, "book_form.html", formPage[model.BookForm]{Title: "Add book", Action: "/books/add/"})
}

func (h *Handler) AddBook(c echo.Context) error {
	page := formPage[model.BookForm]{Title: "Add book", Action: "/books/add/"}
	if ok, err := h.bindBook(c, &page); !ok {
		return err
	}
	if _, err := h.librarySvc.CreateBook(c.Request().Context(), page.Form); err != nil {
		return h.httpError(err)
	}
	return c.Redirect(http.StatusFound, "/books/")
}

func (h *Handler) EditBookForm(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, err := h.librarySvc.GetBook(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "book_form.html", formPage[model.BookForm]{
		Title:  "Edit " + book.Title,
		Action: "/books/" + strconv.FormatInt(id, 10) + "/edit/",
		Form:   book.Form(),
	})
}

func (h *Handler) EditBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	book, err := h.librarySvc.GetBook(ctx, id)
	if err != nil {
		return h.httpError(err)
	}
	page := formPage[model.BookForm]{
		Title:  "Edit " + book.Title,
		Action: "/books/" + strconv.FormatInt(id, 10) + "/edit/",
	}
	if ok, err := h.bindBook(c, &page); !ok {
		return err
	}
	if _, err := h.librarySvc.UpdateBook(ctx, id, page.Form); err != nil {
		return h.httpError(err)
	}
	return c.Redirect(http.StatusFound, "/books/")
}

func (h *Handler) DeleteBookConfirm(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, err := h.librarySvc.GetBook(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "book_confirm_delete.html", book)
}

func (h *Handler) DeleteBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.librarySvc.DeleteBook(c.Request().Context(), id); err != nil {
		return h.httpError(err)
	}
	return c.Redirect(http.StatusFound, "/books/")
}
