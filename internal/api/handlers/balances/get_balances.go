package balances

import (
	"net/http"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/httperrors"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/types"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/util"
)

func GetBalancesRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Balances.GET("", getBalancesHandler(s))
}

func getBalancesHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		latest := s.Balances.Latest()
		if latest == nil {
			// First request before the poller's first tick; read on demand.
			refreshed, err := s.Balances.Refresh(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("On-demand balance read failed")
				return httperrors.FromFault(err)
			}
			latest = refreshed
		}

		res := &types.BalanceResponse{
			Primary:    swag.String(latest.Primary.String()),
			Sufficient: swag.Bool(latest.Sufficient),
			CheckedAt:  strfmt.DateTime(latest.CheckedAt),
		}
		if latest.Delegated != nil {
			res.Delegated = swag.String(latest.Delegated.String())
		}

		return util.ValidateAndReturn(c, http.StatusOK, res)
	}
}
