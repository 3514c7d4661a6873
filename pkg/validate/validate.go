package validate

import (
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Rule is a custom validation tag together with the message reported when it fails.
type Rule struct {
	Tag     string
	Message string
	Fn      validator.Func
}

type CustomValidator struct {
	validator *validator.Validate
	messages  map[string]string
}

// Normalizer is implemented by requests that clean their own input before
// validation.
type Normalizer interface {
	Normalize()
}

var slugRe = regexp.MustCompile(`^[\p{L}\p{N}_-]+$`)

// Rules every validator carries.
var (
	Slug = Rule{
		Tag:     "slug",
		Message: `Enter a valid "slug" consisting of Unicode letters, numbers, underscores, or hyphens.`,
		Fn: func(fl validator.FieldLevel) bool {
			return slugRe.MatchString(fl.Field().String())
		},
	}
	NotFuture = Rule{
		Tag:     "notfuture",
		Message: "Publication year cannot be in the future.",
		Fn: func(fl validator.FieldLevel) bool {
			return YearNotInFuture(int(fl.Field().Int()), time.Now())
		},
	}
)

// YearNotInFuture reports whether year is no later than the calendar year of now.
func YearNotInFuture(year int, now time.Time) bool {
	return year <= now.Year()
}

func NewCustomValidator(rules ...Rule) *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	cv := &CustomValidator{
		validator: v,
		messages:  make(map[string]string),
	}
	for _, r := range append([]Rule{Slug, NotFuture}, rules...) {
		// RegisterValidation only fails on an empty tag or nil func.
		_ = v.RegisterValidation(r.Tag, r.Fn) //nolint:errcheck
		cv.messages[r.Tag] = r.Message
	}
	return cv
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if n, ok := i.(Normalizer); ok {
		n.Normalize()
	}
	return cv.validator.Struct(i)
}

// Var validates a single value against tag, e.g. a path parameter.
func (cv *CustomValidator) Var(field interface{}, tag string) error {
	return cv.validator.Var(field, tag)
}

// FieldErrors converts validator errors into a field -> messages map.
// It returns nil when err carries no field errors.
func (cv *CustomValidator) FieldErrors(err error) map[string][]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = append(out[fe.Field()], cv.message(fe))
	}
	return out
}

func (cv *CustomValidator) message(fe validator.FieldError) string {
	if msg, ok := cv.messages[fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "email":
		return "Enter a valid email address."
	case "oneof":
		return fmt.Sprintf("Value must be one of: %s.", fe.Param())
	case "datetime":
		return "Enter a valid date."
	case "eqfield":
		return fmt.Sprintf("Must match %s.", fe.Param())
	}
	return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
}

// Bind binds req from the request and validates it with Check.
func Bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return Check(c, req)
}

// Check validates req with the echo validator. Field failures become a 400
// whose body maps each field to its messages.
func Check(c echo.Context, req interface{}) error {
	if err := c.Validate(req); err != nil {
		if cv, ok := c.Echo().Validator.(*CustomValidator); ok {
			if fields := cv.FieldErrors(err); fields != nil {
				return echo.NewHTTPError(http.StatusBadRequest, fields)
			}
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
