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

func PutPreferencesRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Preferences.PUT("", putPreferencesHandler(s))
}

func putPreferencesHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		var body types.PutPreferencesPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		owner := s.Config.Wallet.PrimaryOwnerKey()

		version := 1
		if current, err := s.Storage.LoadPreferences(ctx, owner); err == nil {
			version = current.Version + 1
		} else if !errors.Is(err, storageclient.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to load current preferences")
			return httperrors.FromFault(err)
		}

		prefs := &storageclient.Preferences{
			Version:           version,
			PreferStableToken: body.PreferStableToken,
			DefaultModel:      body.DefaultModel,
		}
		if err := s.Storage.SavePreferences(ctx, owner, prefs); err != nil {
			log.Warn().Err(err).Msg("Failed to save preferences")
			return httperrors.FromFault(err)
		}

		// Applies to the next session start, not the active session.
		s.Coordinator.SetStablePayment(body.PreferStableToken)

		return util.ValidateAndReturn(c, http.StatusOK, &types.PreferencesResponse{
			Version:           int64(prefs.Version),
			PreferStableToken: prefs.PreferStableToken,
			DefaultModel:      prefs.DefaultModel,
		})
	}
}
