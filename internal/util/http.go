package util

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Validatable is implemented by payload types that can check their own
// required fields after binding.
type Validatable interface {
	Validate() error
}

// BindAndValidateBody binds the request body into v and runs its validation
// if it implements Validatable.
func BindAndValidateBody(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.Wrap(err, "failed to bind request body").Error())
	}

	if validatable, ok := v.(Validatable); ok {
		if err := validatable.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	return nil
}

// ValidateAndReturn writes v as the JSON response with the given status code.
func ValidateAndReturn(c echo.Context, code int, v interface{}) error {
	if validatable, ok := v.(Validatable); ok {
		if err := validatable.Validate(); err != nil {
			return errors.Wrap(err, "response validation failed")
		}
	}
	return c.JSON(code, v)
}
