package sessions

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/util"
)

func GetCurrentSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Sessions.GET("/current", getCurrentSessionHandler(s))
}

func getCurrentSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		return util.ValidateAndReturn(c, http.StatusOK, sessionResponse(s.Coordinator.Current()))
	}
}
