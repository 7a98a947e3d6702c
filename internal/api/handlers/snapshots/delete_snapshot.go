package snapshots

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/httperrors"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/util"
)

// DeleteSnapshotRoute dismisses the stored recovery snapshot, the "don't
// resume" choice in the UI.
func DeleteSnapshotRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Snapshots.DELETE("", deleteSnapshotHandler(s))
}

func deleteSnapshotHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		if err := s.Snapshots.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("Snapshot clear failed")
			return httperrors.FromFault(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
