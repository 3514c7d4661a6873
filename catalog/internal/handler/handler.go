package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Astemirdum/bookshelf-service/catalog/internal/errs"
	"github.com/Astemirdum/bookshelf-service/catalog/internal/model"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	md "github.com/Astemirdum/bookshelf-service/pkg/middleware"
	"github.com/Astemirdum/bookshelf-service/pkg/validate"
	_ "github.com/Astemirdum/bookshelf-service/swagger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
)

type Handler struct {
	svc       CatalogService
	authn     md.Authenticator
	validator *validate.CustomValidator
	log       *zap.Logger
}

func New(svc CatalogService, authn md.Authenticator, log *zap.Logger) *Handler {
	return &Handler{
		svc:       svc,
		authn:     authn,
		log:       log,
		validator: validate.NewCustomValidator(),
	}
}

// @title Catalog API
// @version 1.0
// @description Books and authors.
// @BasePath /api
// @securityDefinitions.apikey TokenAuth
// @in header
// @name Authorization
func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	md.Base(e)

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = h.validator
	api := e.Group("/api",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)
	jwt := md.JwtAuthentication(h.authn)

	api.GET("/books/", h.ListBooks)
	api.GET("/books/:id/", h.GetBook)
	api.POST("/books/create/", h.CreateBook, jwt)
	api.PUT("/books/:id/update/", h.UpdateBook, jwt)
	api.PATCH("/books/:id/update/", h.PatchBook, jwt)
	api.DELETE("/books/:id/delete/", h.DeleteBook, jwt)

	api.GET("/authors/", h.ListAuthors)
	api.POST("/authors/", h.CreateAuthor, jwt)
	api.GET("/authors/:id/", h.GetAuthor)

	viewset := api.Group("/books_all", jwt)
	viewset.GET("/", h.ListBooks)
	viewset.POST("/", h.CreateBook)
	viewset.GET("/:id/", h.GetBook)
	viewset.PUT("/:id/", h.UpdateBook)
	viewset.PATCH("/:id/", h.PatchBook)
	viewset.DELETE("/:id/", h.DeleteBook)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func username(c echo.Context) string {
	p, _ := auth.FromContext(c.Request().Context())
	return p.Username
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, errs.ErrNotFound.Error())
	}
	return id, nil
}

func (h *Handler) httpError(err error, req *model.BookRequest) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, errs.ErrNotFound.Error())
	case errors.Is(err, errs.ErrInvalidAuthor) && req != nil && req.Author != nil:
		return echo.NewHTTPError(http.StatusBadRequest, map[string][]string{
			"author": {fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *req.Author)},
		})
	}
	h.log.Error("internal", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func nonEmpty(c echo.Context, name string) *string {
	if v := c.QueryParam(name); v != "" {
		return &v
	}
	return nil
}

// ListBooks godoc
// @Summary List books
// @Tags books
// @Produce json
// @Param title query string false "exact title"
// @Param author__name query string false "exact author name"
// @Param publication_year query int false "exact year"
// @Param search query string false "substring of title or author name"
// @Param ordering query string false "title, publication_year, prefix - for descending"
// @Success 200 {array} model.Book
// @Router /books/ [get]
func (h *Handler) ListBooks(c echo.Context) error {
	f := model.BookFilter{
		Title:      nonEmpty(c, "title"),
		AuthorName: nonEmpty(c, "author__name"),
		Search:     c.QueryParam("search"),
	}
	if v := c.QueryParam("publication_year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, map[string][]string{"publication_year": {"Enter a number."}})
		}
		f.PublicationYear = &year
	}
	if v := c.QueryParam("ordering"); v != "" {
		for _, field := range strings.Split(v, ",") {
			if field = strings.TrimSpace(field); field != "" {
				f.Ordering = append(f.Ordering, field)
			}
		}
	}

	books, err := h.svc.ListBooks(c.Request().Context(), f)
	if err != nil {
		return h.httpError(err, nil)
	}
	return c.JSON(http.StatusOK, books)
}

// GetBook godoc
// @Summary Get a book
// @Tags books
// @Produce json
// @Param id path int true "book id"
// @Success 200 {object} model.Book
// @Failure 404 {object} echo.HTTPError
// @Router /books/{id}/ [get]
func (h *Handler) GetBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, err := h.svc.GetBook(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err, nil)
	}
	return c.JSON(http.StatusOK, book)
}

// CreateBook godoc
// @Summary Create a book
// @Tags books
// @Accept json
// @Produce json
// @Security TokenAuth
// @Param book body model.BookRequest true "book"
// @Success 201 {object} model.Book
// @Failure 400 {object} map[string][]string
// @Failure 401 {object} echo.HTTPError
// @Router /books/create/ [post]
func (h *Handler) CreateBook(c echo.Context) error {
	var req model.BookRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	book, err := h.svc.CreateBook(c.Request().Context(), username(c), req)
	if err != nil {
		return h.httpError(err, &req)
	}
	return c.JSON(http.StatusCreated, book)
}

// UpdateBook godoc
// @Summary Replace a book
// @Tags books
// @Accept json
// @Produce json
// @Security TokenAuth
// @Param id path int true "book id"
// @Param book body model.BookRequest true "book"
// @Success 200 {object} model.Book
// @Router /books/{id}/update/ [put]
func (h *Handler) UpdateBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.BookRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	book, err := h.svc.UpdateBook(c.Request().Context(), username(c), id, req)
	if err != nil {
		return h.httpError(err, &req)
	}
	return c.JSON(http.StatusOK, book)
}

// PatchBook godoc
// @Summary Partially update a book
// @Tags books
// @Accept json
// @Produce json
// @Security TokenAuth
// @Param id path int true "book id"
// @Param book body model.BookPatch true "fields to change"
// @Success 200 {object} model.Book
// @Router /books/{id}/update/ [patch]
func (h *Handler) PatchBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var patch model.BookPatch
	if err := c.Bind(&patch); err != nil {
		return err
	}
	ctx := c.Request().Context()
	book, err := h.svc.GetBook(ctx, id)
	if err != nil {
		return h.httpError(err, nil)
	}
	req := patch.Apply(book)
	if err := validate.Check(c, &req); err != nil {
		return err
	}
	book, err = h.svc.UpdateBook(ctx, username(c), id, req)
	if err != nil {
		return h.httpError(err, &req)
	}
	return c.JSON(http.StatusOK, book)
}

// DeleteBook godoc
// @Summary Delete a book
// @Tags books
// @Security TokenAuth
// @Param id path int true "book id"
// @Success 204
// @Router /books/{id}/delete/ [delete]
func (h *Handler) DeleteBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBook(c.Request().Context(), username(c), id); err != nil {
		return h.httpError(err, nil)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListAuthors godoc
// @Summary List authors with their books
// @Tags authors
// @Produce json
// @Success 200 {array} model.Author
// @Router /authors/ [get]
func (h *Handler) ListAuthors(c echo.Context) error {
	authors, err := h.svc.ListAuthors(c.Request().Context())
	if err != nil {
		return h.httpError(err, nil)
	}
	return c.JSON(http.StatusOK, authors)
}

// GetAuthor godoc
// @Summary Get an author with its books
// @Tags authors
// @Produce json
// @Param id path int true "author id"
// @Success 200 {object} model.Author
// @Router /authors/{id}/ [get]
func (h *Handler) GetAuthor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	author, err := h.svc.GetAuthor(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err, nil)
	}
	return c.JSON(http.StatusOK, author)
}

// CreateAuthor godoc
// @Summary Create an author
// @Tags authors
// @Accept json
// @Produce json
// @Security TokenAuth
// @Param author body model.AuthorRequest true "author"
// @Success 201 {object} model.Author
// @Router /authors/ [post]
func (h *Handler) CreateAuthor(c echo.Context) error {
	var req model.AuthorRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	author, err := h.svc.CreateAuthor(c.Request().Context(), req)
	if err != nil {
		return h.httpError(err, nil)
	}
	return c.JSON(http.StatusCreated, author)
}
