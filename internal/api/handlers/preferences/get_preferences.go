package preferences

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

func GetPreferencesRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Preferences.GET("", getPreferencesHandler(s))
}

func getPreferencesHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		prefs, err := s.Storage.LoadPreferences(ctx, s.Config.Wallet.PrimaryOwnerKey())
		if err != nil {
			// A missing document is the first-time-user signal, not a failure.
			if errors.Is(err, storageclient.ErrNotFound) {
				return util.ValidateAndReturn(c, http.StatusOK, &types.PreferencesResponse{
					FirstTimeUser: true,
				})
			}
			log.Warn().Err(err).Msg("Failed to load preferences")
			return httperrors.FromFault(err)
		}

		return util.ValidateAndReturn(c, http.StatusOK, &types.PreferencesResponse{
			Version:           int64(prefs.Version),
			PreferStableToken: prefs.PreferStableToken,
			DefaultModel:      prefs.DefaultModel,
		})
	}
}
