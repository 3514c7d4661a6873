package render

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const ErrorTemplate = "error.html"

type ErrorPage struct {
	Code    int
	Message string
}

// ErrorHandler renders ErrorTemplate for every error that reaches echo.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		page := ErrorPage{Code: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError)}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			page.Code = he.Code
			page.Message = http.StatusText(he.Code)
			if m, ok := he.Message.(string); ok {
				page.Message = m
			}
		}
		if page.Code >= http.StatusInternalServerError {
			log.Error("request failed", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(page.Code)
		} else {
			err = c.Render(page.Code, ErrorTemplate, page)
		}
		if err != nil {
			log.Error("render error page", zap.Error(err))
		}
	}
}
