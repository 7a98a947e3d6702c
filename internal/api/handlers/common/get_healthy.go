package common

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/util"
)

// GetHealthyRoute probes liveness plus the snapshot slot, the one piece of
// local state the daemon owns.
func GetHealthyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/healthy", getHealthyHandler(s))
}

func getHealthyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		var sb strings.Builder

		if !s.Ready() {
			return c.String(http.StatusServiceUnavailable, "Not ready.")
		}
		sb.WriteString("Ready.\n")

		if _, err := s.Snapshots.Load(ctx); err != nil {
			log.Warn().Err(err).Msg("Health probe: snapshot slot unreadable")
			sb.WriteString("Snapshot slot: ERR.\n")
			return c.String(http.StatusServiceUnavailable, sb.String())
		}
		sb.WriteString("Snapshot slot: OK.\n")

		return c.String(http.StatusOK, sb.String())
	}
}
