package router

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/handlers"
)

// Init attaches the echo instance, middleware stack, and route groups to the
// server.
func Init(s *api.Server) {
	s.Echo = echo.New()
	s.Echo.Debug = false
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.HTTPErrorHandler = HTTPErrorHandler(s)

	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestID())
	s.Echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
	}))

	s.Router = &api.Router{
		Root:             s.Echo.Group(""),
		Management:       s.Echo.Group("/-"),
		APIV1Sessions:    s.Echo.Group("/api/v1/sessions"),
		APIV1Hosts:       s.Echo.Group("/api/v1/hosts"),
		APIV1Balances:    s.Echo.Group("/api/v1/balances"),
		APIV1Snapshots:   s.Echo.Group("/api/v1/snapshots"),
		APIV1Preferences: s.Echo.Group("/api/v1/preferences"),
	}

	handlers.AttachAllRoutes(s)
}
