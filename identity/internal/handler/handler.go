package handler

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/Astemirdum/bookshelf-service/identity/internal/errs"
	"github.com/Astemirdum/bookshelf-service/identity/internal/model"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	md "github.com/Astemirdum/bookshelf-service/pkg/middleware"
	"github.com/Astemirdum/bookshelf-service/pkg/validate"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const maxPhotoSize = 5 << 20

const msgForbidden = "You do not have permission to perform this action."

var usernameRe = regexp.MustCompile(`^[\w.@+-]+$`)

type Handler struct {
	svc       IdentityService
	tokens    md.TokenParser
	validator *validate.CustomValidator
	log       *zap.Logger
}

func New(svc IdentityService, tokens md.TokenParser, log *zap.Logger) *Handler {
	return &Handler{
		svc:    svc,
		tokens: tokens,
		log:    log,
		validator: validate.NewCustomValidator(
			validate.Rule{
				Tag:     "username",
				Message: "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.",
				Fn: func(fl validator.FieldLevel) bool {
					return usernameRe.MatchString(fl.Field().String())
				},
			},
			validate.Rule{
				Tag:     "codename",
				Message: `Enter a permission as "app_label.codename".`,
				Fn: func(fl validator.FieldLevel) bool {
					return model.ValidCodename(fl.Field().String())
				},
			},
		),
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	md.Base(e)

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = h.validator
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.POST("/register", h.Register)
	api.POST("/authorize", h.Authorize)
	api.GET("/users/:username/photo", h.GetPhoto)

	jwt := md.JwtAuthentication(md.AuthenticatorFunc(h.authenticate))
	me := api.Group("/me", jwt)
	me.GET("", h.Me)
	me.PATCH("", h.UpdateMe)
	me.PUT("/photo", h.UploadPhoto)

	admin := api.Group("/users", jwt, requireAdmin)
	admin.GET("", h.ListUsers)
	admin.PATCH("/:username", h.AdminUpdate)
	admin.POST("/:username/permissions", h.GrantPermission)
	admin.DELETE("/:username/permissions/:codename", h.RevokePermission)

	return e
}

// authenticate checks the token and reloads its owner, so role, permission
// and activation changes apply to tokens issued before them.
func (h *Handler) authenticate(ctx context.Context, token string) (auth.Principal, error) {
	claimed, err := h.tokens.Parse(token)
	if err != nil {
		return auth.Principal{}, err
	}
	return h.svc.Principal(ctx, claimed)
}

func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _ := auth.FromContext(c.Request().Context())
		if !auth.CanManageUsers(p) {
			return echo.NewHTTPError(http.StatusForbidden, msgForbidden)
		}
		return next(c)
	}
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) httpError(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrPhotoNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, errs.ErrInvalidRole):
		return echo.NewHTTPError(http.StatusBadRequest, map[string][]string{"role": {err.Error()}})
	case errors.Is(err, errs.ErrPhotoStorage):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	h.log.Error("internal", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func principal(c echo.Context) auth.Principal {
	p, _ := auth.FromContext(c.Request().Context())
	return p
}

func (h *Handler) Register(c echo.Context) error {
	var req model.RegisterRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return echo.NewHTTPError(http.StatusConflict, map[string][]string{"username": {err.Error()}})
		}
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *Handler) Authorize(c echo.Context) error {
	var req model.AuthRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	token, err := h.svc.Authorize(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, token)
}

func (h *Handler) Me(c echo.Context) error {
	user, err := h.svc.GetUser(c.Request().Context(), principal(c).Username)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateMe(c echo.Context) error {
	var req model.UpdateProfileRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.svc.UpdateProfile(c.Request().Context(), principal(c).Username, req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) UploadPhoto(c echo.Context) error {
	file, err := c.FormFile("photo")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, map[string][]string{"photo": {"No file was submitted."}})
	}
	if file.Size > maxPhotoSize {
		return echo.NewHTTPError(http.StatusBadRequest, map[string][]string{"photo": {"Ensure the file is no larger than 5 MB."}})
	}
	contentType := file.Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, "image/") {
		return echo.NewHTTPError(http.StatusBadRequest, map[string][]string{"photo": {"Upload a valid image. The file you uploaded was either not an image or a corrupted image."}})
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	user, err := h.svc.UploadPhoto(c.Request().Context(), principal(c).Username, file.Filename, contentType, src, file.Size)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) GetPhoto(c echo.Context) error {
	rc, contentType, err := h.svc.GetPhoto(c.Request().Context(), c.Param("username"))
	if err != nil {
		return h.httpError(err)
	}
	defer rc.Close()
	return c.Stream(http.StatusOK, contentType, rc)
}

func (h *Handler) ListUsers(c echo.Context) error {
	users, err := h.svc.ListUsers(c.Request().Context())
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) AdminUpdate(c echo.Context) error {
	var req model.AdminUpdateRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.svc.AdminUpdate(c.Request().Context(), c.Param("username"), req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) GrantPermission(c echo.Context) error {
	var req model.PermissionRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	username := c.Param("username")
	if err := h.svc.GrantPermission(ctx, username, req.Codename); err != nil {
		return h.httpError(err)
	}
	user, err := h.svc.GetUser(ctx, username)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) RevokePermission(c echo.Context) error {
	if err := h.svc.RevokePermission(c.Request().Context(), c.Param("username"), c.Param("codename")); err != nil {
		return h.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
