package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropbox/godropbox/time2"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/config"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/balance"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/host"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/session"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/notify"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/snapshot"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/storageclient"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/wallet"
)

type Router struct {
	Routes           []*echo.Route
	Root             *echo.Group
	Management       *echo.Group
	APIV1Sessions    *echo.Group
	APIV1Hosts       *echo.Group
	APIV1Balances    *echo.Group
	APIV1Snapshots   *echo.Group
	APIV1Preferences *echo.Group
}

// Server is the central struct keeping all the dependencies. Components are
// initialized by InitServer in providers.go; Echo and Router are attached by
// router.Init afterwards.
type Server struct {
	Echo   *echo.Echo
	Router *Router

	Config config.Server
	Clock  time2.Clock

	Wallet      *wallet.BroadcastAdapter
	Coordinator *session.Coordinator
	Selector    *host.Selector
	Balances    *balance.Poller
	Snapshots   snapshot.Store
	AutoSaver   *snapshot.AutoSaver
	Storage     storageclient.Client
	Notifier    notify.Notifier
}

func NewServer(cfg config.Server) *Server {
	return &Server{
		Config: cfg,
	}
}

// Ready reports whether every component a request handler touches is wired.
func (s *Server) Ready() bool {
	ready := s.Echo != nil &&
		s.Router != nil &&
		s.Clock != nil &&
		s.Coordinator != nil &&
		s.Selector != nil &&
		s.Balances != nil &&
		s.Snapshots != nil
	if !ready {
		log.Debug().Msg("Server is not fully initialized")
	}
	return ready
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}
	return s.Echo.Start(s.Config.Echo.ListenAddress)
}

func (s *Server) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down server")

	var errs []error
	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")
		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}
	return errs
}
