package snapshots

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

func GetSnapshotRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Snapshots.GET("", getSnapshotHandler(s))
}

func getSnapshotHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		snap, err := s.Snapshots.Load(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Snapshot load failed")
			return httperrors.FromFault(err)
		}
		if snap == nil {
			return httperrors.NewHTTPError(http.StatusNotFound, types.PublicHTTPErrorTypeGeneric, "no recoverable session")
		}

		res := &types.SnapshotResponse{
			SessionID:    swag.String(snap.SessionID),
			MessageCount: int64(len(snap.Messages)),
			TotalTokens:  snap.TotalTokens,
			CapturedAt:   strfmt.DateTime(snap.CapturedAt),
		}
		if snap.TotalCost != nil {
			res.TotalCost = swag.String(snap.TotalCost.String())
		}

		return util.ValidateAndReturn(c, http.StatusOK, res)
	}
}
