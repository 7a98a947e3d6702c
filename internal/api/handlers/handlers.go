package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/handlers/balances"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/handlers/common"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/handlers/hosts"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/handlers/preferences"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/handlers/sessions"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/handlers/snapshots"
)

// AttachAllRoutes binds every route to its group. Keep the list sorted by
// package.
func AttachAllRoutes(s *api.Server) {
	s.Router.Routes = []*echo.Route{
		balances.GetBalancesRoute(s),
		common.GetHealthyRoute(s),
		common.GetMetricsRoute(s),
		common.GetReadyRoute(s),
		hosts.GetListHostsRoute(s),
		preferences.GetPreferencesRoute(s),
		preferences.PutPreferencesRoute(s),
		sessions.DeleteEndSessionRoute(s),
		sessions.GetConversationRoute(s),
		sessions.GetCurrentSessionRoute(s),
		sessions.PostSendMessageRoute(s),
		sessions.PostStartSessionRoute(s),
		snapshots.DeleteSnapshotRoute(s),
		snapshots.GetSnapshotRoute(s),
	}
}
