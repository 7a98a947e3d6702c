package hosts

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/httperrors"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/types"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/util"
)

func GetListHostsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Hosts.GET("", getListHostsHandler(s))
}

func getListHostsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		discovered, err := s.Selector.Discover(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Host discovery failed")
			return httperrors.FromFault(err)
		}

		res := &types.HostListResponse{Hosts: make([]*types.HostResponse, 0, len(discovered))}
		for _, h := range discovered {
			res.Hosts = append(res.Hosts, &types.HostResponse{
				Address:             swag.String(h.Address.Hex()),
				Endpoint:            swag.String(h.Endpoint),
				Models:              h.Models,
				Stake:               swag.String(h.Stake.String()),
				PricePerTokenNative: swag.String(h.PricePerTokenNative.String()),
				PricePerTokenStable: swag.String(h.PricePerTokenStable.String()),
			})
		}

		return util.ValidateAndReturn(c, http.StatusOK, res)
	}
}
