package sessions

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/httperrors"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/storageclient"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/types"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/util"
)

// GetConversationRoute loads a persisted conversation from durable storage
// for display, keyed by session id.
func GetConversationRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Sessions.GET("/:id/conversation", getConversationHandler(s))
}

func getConversationHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		data, err := s.Storage.LoadConversation(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, storageclient.ErrNotFound) {
				return httperrors.NewHTTPError(http.StatusNotFound, types.PublicHTTPErrorTypeGeneric, "conversation not found")
			}
			log.Warn().Err(err).Msg("Failed to load conversation")
			return httperrors.FromFault(err)
		}

		return c.JSONBlob(http.StatusOK, data)
	}
}
