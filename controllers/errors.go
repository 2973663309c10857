package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"studioapi/models"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ValidationError carries per-field messages keyed by JSON field name.
type ValidationError struct {
	Errors map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %d field(s)", len(e.Errors))
}

type CustomValidator struct {
	validator *validator.Validate
}

// everyRule lists fields whose rules are all reported, not only the first
// failing one.
var everyRule = map[string]bool{"password": true}

func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out := make(map[string][]string)
	for _, fe := range fieldErrors {
		if everyRule[fe.Field()] {
			out[fe.Field()] = append(out[fe.Field()], cv.failingRules(i, fe)...)
			continue
		}
		out[fe.Field()] = append(out[fe.Field()], fieldMessage(fe.Field(), fe.Tag(), fe.Param()))
	}
	return &ValidationError{Errors: out}
}

// failingRules checks each rule of the field's validate tag on its own.
func (cv *CustomValidator) failingRules(i interface{}, fe validator.FieldError) []string {
	field, ok := reflect.Indirect(reflect.ValueOf(i)).Type().FieldByName(fe.StructField())
	if !ok {
		return []string{fieldMessage(fe.Field(), fe.Tag(), fe.Param())}
	}
	var messages []string
	for _, rule := range strings.Split(field.Tag.Get("validate"), ",") {
		if rule == "" || rule == "omitempty" {
			continue
		}
		err := cv.validator.Var(fe.Value(), rule)
		ruleErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			continue
		}
		for _, re := range ruleErrors {
			messages = append(messages, fieldMessage(fe.Field(), re.Tag(), re.Param()))
		}
	}
	return messages
}

func fieldMessage(field string, tag string, param string) string {
	switch field + "." + tag {
	case "email.required", "email.email":
		return "Invalid email address"
	case "password.required":
		return "Password is required"
	case "password.min":
		return "Password must be at least 8 characters"
	case "password.hasupper":
		return "Password must contain at least one uppercase letter"
	case "password.haslower":
		return "Password must contain at least one lowercase letter"
	case "password.hasdigit":
		return "Password must contain at least one number"
	case "prompt.required":
		return "Prompt is required"
	case "prompt.max":
		return "Prompt must be less than 500 characters"
	case "style.required", "style.style":
		return "Invalid style selected"
	case "name.max":
		return "Name must be at most 100 characters"
	}
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	}
	return fmt.Sprintf("%s is invalid", field)
}

// NewHTTPErrorHandler renders every error as {"message": ...}. Validation
// failures also carry the field errors. 5xx errors go to sentry.
func NewHTTPErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, models.ValidationErrorOut{Message: "Validation error", Errors: validationErr.Errors})
			return
		}

		code := http.StatusInternalServerError
		message := "Internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(code)
			}
		}

		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			if hub := sentryecho.GetHubFromContext(c); hub != nil {
				hub.CaptureException(err)
			} else {
				sentry.CaptureException(err)
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, models.MessageOut{Message: message})
		}
		if err != nil {
			logger.Error("failed to write error response", zap.Error(err))
		}
	}
}
