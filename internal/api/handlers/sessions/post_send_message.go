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

func PostSendMessageRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Sessions.POST("/messages", postSendMessageHandler(s))
}

func postSendMessageHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		var body types.PostSendMessagePayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		reply, err := s.Coordinator.Send(ctx, swag.StringValue(body.Message))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to send message")
			return httperrors.FromFault(err)
		}

		res := &types.SendMessageResponse{
			Reply: swag.String(reply),
		}
		if sess := s.Coordinator.Current(); sess != nil {
			res.TotalTokens = sess.TotalTokens
			if sess.TotalCost != nil {
				res.TotalCost = swag.String(sess.TotalCost.String())
			}
		}

		return util.ValidateAndReturn(c, http.StatusOK, res)
	}
}
