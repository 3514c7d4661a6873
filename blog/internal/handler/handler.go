package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Astemirdum/bookshelf-service/blog/internal/errs"
	"github.com/Astemirdum/bookshelf-service/blog/internal/model"
	"github.com/Astemirdum/bookshelf-service/blog/internal/session"
	"github.com/Astemirdum/bookshelf-service/blog/templates"
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
	postsURL = "/post/"

	sessionKey   = "session"
	sessionIDKey = "session_id"
)

type Handler struct {
	blogSvc   BlogService
	identity  IdentityClient
	sessions  SessionStore
	renderer  *render.Renderer
	validator *validate.CustomValidator
	log       *zap.Logger
}

func New(blogSvc BlogService, identity IdentityClient, sessions SessionStore, log *zap.Logger) *Handler {
	return &Handler{
		blogSvc:   blogSvc,
		identity:  identity,
		sessions:  sessions,
		log:       log,
		renderer:  render.Must(render.New(templates.Files)),
		validator: validate.NewCustomValidator(),
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
		h.loadSession,
	)
	login := md.RequireLogin(loginURL)

	pages.GET("/", func(c echo.Context) error { return c.Redirect(http.StatusFound, postsURL) })
	pages.GET("/register/", h.RegisterForm)
	pages.POST("/register/", h.Register)
	pages.GET("/login/", h.LoginForm)
	pages.POST("/login/", h.Login)
	pages.POST("/logout/", h.Logout)
	pages.GET("/profile/", h.Profile, login)
	pages.POST("/profile/", h.UpdateProfile, login)

	pages.GET("/post/", h.ListPosts)
	pages.GET("/posts/", h.ListPosts)
	pages.GET("/search/", h.Search)
	pages.GET("/tags/:slug/", h.PostsByTag)

	pages.GET("/post/new/", h.NewPostForm, login)
	pages.POST("/post/new/", h.CreatePost, login)
	pages.GET("/post/:id/", h.PostDetail)
	pages.POST("/post/:id/", h.AddComment, login)
	pages.GET("/post/:id/update/", h.EditPostForm, login)
	pages.POST("/post/:id/update/", h.UpdatePost, login)
	pages.GET("/post/:id/delete/", h.DeletePostConfirm, login)
	pages.POST("/post/:id/delete/", h.DeletePost, login)
	pages.GET("/post/:id/comments/new/", h.NewCommentForm, login)
	pages.POST("/post/:id/comments/new/", h.AddComment, login)

	pages.GET("/comment/:id/update/", h.EditCommentForm, login)
	pages.POST("/comment/:id/update/", h.UpdateComment, login)
	pages.GET("/comment/:id/delete/", h.DeleteCommentConfirm, login)
	pages.POST("/comment/:id/delete/", h.DeleteComment, login)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// loadSession resolves the sessionid cookie into the request principal.
// The account is reloaded from identity on every request, so role and
// permission changes apply at once. Unknown or broken sessions leave the
// request anonymous; sessions identity rejects are ended.
func (h *Handler) loadSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(session.CookieName)
		if err != nil || cookie.Value == "" {
			return next(c)
		}
		ctx := c.Request().Context()
		sess, err := h.sessions.Get(ctx, cookie.Value)
		if err != nil {
			if !errors.Is(err, errs.ErrNoSession) {
				h.log.Warn("load session", zap.Error(err))
			}
			return next(c)
		}
		c.Set(sessionIDKey, cookie.Value)
		user, err := h.identity.Me(ctx, sess.Token)
		switch {
		case errors.Is(err, identity.ErrUnauthorized):
			h.endSession(c)
			return next(c)
		case err != nil:
			h.log.Warn("refresh session principal", zap.Error(err))
			return next(c)
		case user.ID != sess.Principal.UserID || !user.IsActive:
			h.endSession(c)
			return next(c)
		}
		sess.Principal = user.Principal()
		c.Set(sessionKey, sess)
		req := c.Request()
		c.SetRequest(req.WithContext(auth.WithPrincipal(req.Context(), sess.Principal)))
		return next(c)
	}
}

func principal(c echo.Context) auth.Principal {
	p, _ := auth.FromContext(c.Request().Context())
	return p
}

func (h *Handler) startSession(c echo.Context, token string, p auth.Principal) error {
	sid, err := h.sessions.Create(c.Request().Context(), model.Session{Token: token, Principal: p})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.SetCookie(&http.Cookie{
		Name:     session.CookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(session.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *Handler) endSession(c echo.Context) {
	if sid, ok := c.Get(sessionIDKey).(string); ok {
		if err := h.sessions.Delete(c.Request().Context(), sid); err != nil {
			h.log.Warn("delete session", zap.Error(err))
		}
	}
	c.SetCookie(&http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// safeNext keeps redirects on this host.
func safeNext(next, fallback string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, errs.ErrNotFound.Error())
	}
	return id, nil
}

func (h *Handler) httpError(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

type formPage[T any] struct {
	Title  string
	Action string
	Form   T
	Errors map[string][]string
	Post   model.Post
}

// bindForm binds and validates the form. A false result means the form
// failed validation and page.Errors is set.
func bindForm[T any](h *Handler, c echo.Context, page *formPage[T]) (bool, error) {
	if err := c.Bind(&page.Form); err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&page.Form); err != nil {
		page.Errors = h.validator.FieldErrors(err)
		if page.Errors == nil {
			return false, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return false, nil
	}
	return true, nil
}

func (h *Handler) RegisterForm(c echo.Context) error {
	return c.Render(http.StatusOK, "register.html", formPage[model.RegisterForm]{})
}

func (h *Handler) Register(c echo.Context) error {
	page := formPage[model.RegisterForm]{}
	ok, err := bindForm(h, c, &page)
	if err != nil {
		return err
	}
	if !ok {
		if _, mismatch := page.Errors["password2"]; mismatch && page.Form.Password2 != "" {
			page.Errors["password2"] = []string{"The two password fields didn't match."}
		}
		return c.Render(http.StatusBadRequest, "register.html", page)
	}

	ctx := c.Request().Context()
	_, err = h.identity.Register(ctx, identity.RegisterRequest{
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
		}
		return h.httpError(err)
	}

	token, p, err := h.identity.Login(ctx, page.Form.Username, page.Form.Password1)
	if err != nil {
		return h.httpError(err)
	}
	if err := h.startSession(c, token, p); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, "/profile/")
}

func (h *Handler) LoginForm(c echo.Context) error {
	page := formPage[model.LoginForm]{Form: model.LoginForm{Next: c.QueryParam("next")}}
	return c.Render(http.StatusOK, "login.html", page)
}

func (h *Handler) Login(c echo.Context) error {
	page := formPage[model.LoginForm]{}
	ok, err := bindForm(h, c, &page)
	if err != nil {
		return err
	}
	if !ok {
		return c.Render(http.StatusBadRequest, "login.html", page)
	}
	token, p, err := h.identity.Login(c.Request().Context(), page.Form.Username, page.Form.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			page.Errors = map[string][]string{"__all__": {err.Error()}}
			return c.Render(http.StatusUnauthorized, "login.html", page)
		}
		return h.httpError(err)
	}
	if err := h.startSession(c, token, p); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, safeNext(page.Form.Next, postsURL))
}

func (h *Handler) Logout(c echo.Context) error {
	h.endSession(c)
	req := c.Request()
	c.SetRequest(req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{})))
	return c.Render(http.StatusOK, "logout.html", nil)
}

func (h *Handler) Profile(c echo.Context) error {
	return c.Render(http.StatusOK, "profile.html", formPage[model.ProfileForm]{
		Form: model.ProfileForm{Email: principal(c).Email},
	})
}

// UpdateProfile changes the email through identity. An empty email leaves
// the profile untouched.
func (h *Handler) UpdateProfile(c echo.Context) error {
	page := formPage[model.ProfileForm]{}
	ok, err := bindForm(h, c, &page)
	if err != nil {
		return err
	}
	if !ok {
		return c.Render(http.StatusBadRequest, "profile.html", page)
	}
	if page.Form.Email == "" {
		page.Form.Email = principal(c).Email
		return c.Render(http.StatusOK, "profile.html", page)
	}

	sess, _ := c.Get(sessionKey).(model.Session)
	sid, _ := c.Get(sessionIDKey).(string)
	ctx := c.Request().Context()
	user, err := h.identity.UpdateMe(ctx, sess.Token, identity.UpdateProfileRequest{Email: &page.Form.Email})
	if err != nil {
		var verr *identity.ValidationError
		switch {
		case errors.As(err, &verr):
			page.Errors = verr.Fields
			return c.Render(http.StatusBadRequest, "profile.html", page)
		case errors.Is(err, identity.ErrUnauthorized):
			h.endSession(c)
			return md.RedirectToLogin(c, loginURL)
		}
		return h.httpError(err)
	}
	sess.Principal = user.Principal()
	if err := h.sessions.Update(ctx, sid, sess); err != nil {
		if errors.Is(err, errs.ErrNoSession) {
			h.endSession(c)
			return md.RedirectToLogin(c, loginURL)
		}
		return h.httpError(err)
	}
	return c.Redirect(http.StatusFound, "/profile/")
}

type postsPage struct {
	Heading string
	Query   string
	Posts   []model.Post
}

func (h *Handler) ListPosts(c echo.Context) error {
	posts, err := h.blogSvc.ListPosts(c.Request().Context(), model.PostFilter{})
	if err != nil {
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "post_list.html", postsPage{Heading: "Blog Posts", Posts: posts})
}

func (h *Handler) Search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	posts, err := h.blogSvc.ListPosts(c.Request().Context(), model.PostFilter{Query: q})
	if err != nil {
		return h.httpError(err)
	}
	heading := "Blog Posts"
	if q != "" {
		heading = "Search results for \"" + q + "\""
	}
	return c.Render(http.StatusOK, "post_list.html", postsPage{Heading: heading, Query: q, Posts: posts})
}

func (h *Handler) PostsByTag(c echo.Context) error {
	slug := c.Param("slug")
	if err := h.validator.Var(slug, "slug"); err != nil {
		return h.httpError(errs.ErrNotFound)
	}
	tag, posts, err := h.blogSvc.PostsByTag(c.Request().Context(), slug)
	if err != nil {
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "post_list.html", postsPage{Heading: "Posts tagged \"" + tag.Name + "\"", Posts: posts})
}

type detailPage struct {
	model.PostDetail
	Form   model.CommentForm
	Errors map[string][]string
}

func (h *Handler) PostDetail(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	detail, err := h.blogSvc.PostDetail(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "post_detail.html", detailPage{PostDetail: detail})
}

func postURL(id int64) string {
	return "/post/" + strconv.FormatInt(id, 10) + "/"
}

func (h *Handler) NewPostForm(c echo.Context) error {
	return c.Render(http.StatusOK, "post_form.html", formPage[model.PostForm]{Title: "New post", Action: "/post/new/"})
}

func (h *Handler) CreatePost(c echo.Context) error {
	page := formPage[model.PostForm]{Title: "New post", Action: "/post/new/"}
	ok, err := bindForm(h, c, &page)
	if err != nil {
		return err
	}
	if !ok {
		return c.Render(http.StatusBadRequest, "post_form.html", page)
	}
	post, err := h.blogSvc.CreatePost(c.Request().Context(), principal(c), page.Form)
	if err != nil {
		return h.httpError(err)
	}
	return c.Redirect(http.StatusFound, postURL(post.ID))
}

func (h *Handler) EditPostForm(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	post, err := h.blogSvc.EditablePost(c.Request().Context(), principal(c), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "post_form.html", formPage[model.PostForm]{
		Title:  "Edit post",
		Action: postURL(id) + "update/",
		Form:   post.Form(),
		Post:   post,
	})
}

func (h *Handler) UpdatePost(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	post, err := h.blogSvc.EditablePost(ctx, principal(c), id)
	if err != nil {
		return h.httpError(err)
	}
	page := formPage[model.PostForm]{Title: "Edit post", Action: postURL(id) + "update/", Post: post}
	ok, err := bindForm(h, c, &page)
	if err != nil {
		return err
	}
	if !ok {
		return c.Render(http.StatusBadRequest, "post_form.html", page)
	}
	if _, err := h.blogSvc.UpdatePost(ctx, principal(c), id, page.Form); err != nil {
		return h.httpError(err)
	}
	return c.Redirect(http.StatusFound, postURL(id))
}

func (h *Handler) DeletePostConfirm(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	post, err := h.blogSvc.EditablePost(c.Request().Context(), principal(c), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "post_confirm_delete.html", post)
}

func (h *Handler) DeletePost(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.blogSvc.DeletePost(c.Request().Context(), principal(c), id); err != nil {
		return h.httpError(err)
	}
	return c.Redirect(http.StatusFound, postsURL)
}

func (h *Handler) NewCommentForm(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	post, err := h.blogSvc.GetPost(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "comment_form.html", formPage[model.CommentForm]{
		Title:  "Add comment",
		Action: postURL(id) + "comments/new/",
		Post:   post,
	})
}

// AddComment serves both the detail page form and the standalone comment
// form. Invalid input re-renders the detail page.
func (h *Handler) AddComment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	page := formPage[model.CommentForm]{}
	ok, err := bindForm(h, c, &page)
	if err != nil {
		return err
	}
	if !ok {
		detail, err := h.blogSvc.PostDetail(ctx, id)
		if err != nil {
			return h.httpError(err)
		}
		return c.Render(http.StatusBadRequest, "post_detail.html", detailPage{
			PostDetail: detail,
			Form:       page.Form,
			Errors:     page.Errors,
		})
	}
	if _, err := h.blogSvc.AddComment(ctx, principal(c), id, page.Form); err != nil {
		return h.httpError(err)
	}
	return c.Redirect(http.StatusFound, postURL(id))
}

func (h *Handler) EditCommentForm(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	comment, err := h.blogSvc.EditableComment(c.Request().Context(), principal(c), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "comment_form.html", formPage[model.CommentForm]{
		Title:  "Edit comment",
		Action: "/comment/" + strconv.FormatInt(id, 10) + "/update/",
		Form:   model.CommentForm{Content: comment.Content},
		Post:   model.Post{ID: comment.PostID},
	})
}

func (h *Handler) UpdateComment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	comment, err := h.blogSvc.EditableComment(ctx, principal(c), id)
	if err != nil {
		return h.httpError(err)
	}
	page := formPage[model.CommentForm]{
		Title:  "Edit comment",
		Action: "/comment/" + strconv.FormatInt(id, 10) + "/update/",
		Post:   model.Post{ID: comment.PostID},
	}
	ok, err := bindForm(h, c, &page)
	if err != nil {
		return err
	}
	if !ok {
		return c.Render(http.StatusBadRequest, "comment_form.html", page)
	}
	if _, err := h.blogSvc.UpdateComment(ctx, principal(c), id, page.Form); err != nil {
		return h.httpError(err)
	}
	return c.Redirect(http.StatusFound, postURL(comment.PostID))
}

func (h *Handler) DeleteCommentConfirm(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	comment, err := h.blogSvc.EditableComment(c.Request().Context(), principal(c), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.Render(http.StatusOK, "comment_confirm_delete.html", comment)
}

func (h *Handler) DeleteComment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	comment, err := h.blogSvc.DeleteComment(c.Request().Context(), principal(c), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.Redirect(http.StatusFound, postURL(comment.PostID))
}
