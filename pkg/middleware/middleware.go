package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

const (
	bearer = "Bearer "
	token  = "Token "
)

// TokenParser turns a raw token into the principal it was issued for.
type TokenParser interface {
	Parse(token string) (auth.Principal, error)
}

// Authenticator resolves a raw token into the principal as it is stored now.
// Role, permission and activation changes made after the token was issued
// take effect on the next request.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

type AuthenticatorFunc func(ctx context.Context, token string) (auth.Principal, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (auth.Principal, error) {
	return f(ctx, token)
}

func extractToken(c echo.Context) (string, bool) {
	if authorization := c.Request().Header.Get(auth.AuthorizationHeader); authorization != "" {
		for _, scheme := range []string{bearer, token} {
			if strings.HasPrefix(authorization, scheme) {
				return strings.TrimPrefix(authorization, scheme), true
			}
		}
		return "", false
	}
	if cookie, err := c.Cookie(auth.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

func setPrincipal(c echo.Context, p auth.Principal) {
	req := c.Request()
	c.SetRequest(req.WithContext(auth.WithPrincipal(req.Context(), p)))
}

// JwtAuthentication rejects requests without a valid token with 401, and
// with 503 when the principal cannot be resolved.
func JwtAuthentication(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get(auth.AuthorizationHeader) == "" {
				if _, err := c.Cookie(auth.CookieName); err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "Authentication credentials were not provided.")
				}
			}
			tokenStr, ok := extractToken(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization Header")
			}
			p, err := a.Authenticate(c.Request().Context(), tokenStr)
			if err != nil {
				if errors.Is(err, auth.ErrUnavailable) {
					return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
				}
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

// OptionalJwt attaches the principal when a valid token is present and never rejects.
func OptionalJwt(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if tokenStr, ok := extractToken(c); ok {
				if p, err := a.Authenticate(c.Request().Context(), tokenStr); err == nil {
					setPrincipal(c, p)
				}
			}
			return next(c)
		}
	}
}

func RedirectToLogin(c echo.Context, loginURL string) error {
	return c.Redirect(http.StatusFound, loginURL+"?next="+url.QueryEscape(c.Request().URL.RequestURI()))
}

// RequireLogin redirects anonymous users to loginURL.
func RequireLogin(loginURL string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := auth.FromContext(c.Request().Context()); !ok {
				return RedirectToLogin(c, loginURL)
			}
			return next(c)
		}
	}
}

// RequireRole sends anyone failing auth.HasRole to loginURL.
func RequireRole(role, loginURL string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, _ := auth.FromContext(c.Request().Context())
			if !auth.HasRole(p, role) {
				return RedirectToLogin(c, loginURL)
			}
			return next(c)
		}
	}
}

// RequirePerm redirects anonymous users and answers 403 to authenticated users lacking codename.
func RequirePerm(codename, loginURL string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := auth.FromContext(c.Request().Context())
			if !ok {
				return RedirectToLogin(c, loginURL)
			}
			if !auth.HasPerm(p, codename) {
				return echo.NewHTTPError(http.StatusForbidden, "You do not have permission to perform this action.")
			}
			return next(c)
		}
	}
}

func NewRateLimiter(rps rate.Limit) echo.MiddlewareFunc {
	return middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rps))
}

func RequestLoggerConfig(log *zap.Logger) middleware.RequestLoggerConfig {
	log = log.Named("echo")
	return middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		HandleError:  true,
		LogError:     true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := zapcore.InfoLevel
			if v.Error != nil {
				level = zapcore.ErrorLevel
			}
			log.Log(level, "request",
				zap.String("URI", v.URI),
				zap.String("Method", v.Method),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.Error(v.Error),
				zap.String("request_id", v.RequestID),
			)
			return nil
		},
	}
}

// Base installs the middleware every service router shares.
func Base(e *echo.Echo) {
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))
}
