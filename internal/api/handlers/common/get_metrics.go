package common

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
)

func GetMetricsRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
