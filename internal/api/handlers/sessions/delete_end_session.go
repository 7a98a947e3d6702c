package sessions

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/httperrors"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/types"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/util"
)

func DeleteEndSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Sessions.DELETE("/current", deleteEndSessionHandler(s))
}

func deleteEndSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		totals, err := s.Coordinator.End(ctx)
		if totals == nil && err != nil {
			log.Warn().Err(err).Msg("Failed to end session")
			return httperrors.FromFault(err)
		}
		if err != nil {
			// Settlement lagged but the local session is closed; the totals
			// are still the correct display figures.
			log.Warn().Err(err).Msg("Session ended locally, external settlement still pending")
		}

		res := &types.SessionTotalsResponse{
			Tokens:   totals.Tokens,
			Messages: int64(totals.Messages),
		}
		if totals.Cost != nil {
			res.Cost = swag.String(totals.Cost.String())
		}

		return util.ValidateAndReturn(c, http.StatusOK, res)
	}
}
