package sessions

import (
	"net/http"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/httperrors"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/session"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/types"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/util"
)

func PostStartSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Sessions.POST("", postStartSessionHandler(s))
}

func postStartSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		var body types.PostStartSessionPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		sess, err := s.Coordinator.Start(ctx, swag.StringValue(body.ModelID))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to start session")
			return httperrors.FromFault(err)
		}

		return util.ValidateAndReturn(c, http.StatusCreated, sessionResponse(sess))
	}
}

// sessionResponse maps the coordinator's session view into the public DTO.
// Big integers travel as decimal strings.
func sessionResponse(sess *session.Session) *types.SessionResponse {
	if sess == nil {
		return &types.SessionResponse{
			Status: swag.String(session.StatusIdle.String()),
		}
	}

	res := &types.SessionResponse{
		SessionID:     swag.String(sess.ID),
		Status:        swag.String(sess.Status.String()),
		ModelID:       swag.String(sess.ModelID),
		StablePayment: sess.StablePayment,
		TotalTokens:   sess.TotalTokens,
		MessageCount:  int64(len(sess.Messages)),
	}
	if sess.Host != nil {
		res.HostAddress = swag.String(sess.Host.Address.Hex())
		res.HostEndpoint = swag.String(sess.Host.Endpoint)
	}
	if sess.Deposit != nil {
		res.Deposit = swag.String(sess.Deposit.String())
	}
	if sess.PricePerToken != nil {
		res.PricePerToken = swag.String(sess.PricePerToken.String())
	}
	if sess.TotalCost != nil {
		res.TotalCost = swag.String(sess.TotalCost.String())
	}
	if !sess.StartedAt.IsZero() {
		res.StartedAt = strfmt.DateTime(sess.StartedAt)
	}
	return res
}
