package router

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/httperrors"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/types"
)

// HTTPErrorHandler serializes every error into the public envelope. Internal
// server error details are hidden from the response when configured.
func HTTPErrorHandler(s *api.Server) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var payload *types.PublicHTTPError

		switch e := err.(type) {
		case *httperrors.HTTPError:
			payload = &e.PublicHTTPError
		case *echo.HTTPError:
			code := int64(e.Code)
			title := http.StatusText(e.Code)
			if msg, ok := e.Message.(string); ok {
				title = msg
			}
			payload = &types.PublicHTTPError{
				Code:  swag.Int64(code),
				Type:  swag.String(types.PublicHTTPErrorTypeGeneric),
				Title: swag.String(title),
			}
		default:
			payload = &types.PublicHTTPError{
				Code:  swag.Int64(http.StatusInternalServerError),
				Type:  swag.String(types.PublicHTTPErrorTypeGeneric),
				Title: swag.String(http.StatusText(http.StatusInternalServerError)),
			}
		}

		code := int(swag.Int64Value(payload.Code))
		if code >= http.StatusInternalServerError && s.Config.Echo.HideInternalServerError {
			payload.Title = swag.String(http.StatusText(code))
		}

		if writeErr := c.JSON(code, payload); writeErr != nil {
			log.Error().Err(writeErr).Msg("Failed to write error response")
		}
	}
}
