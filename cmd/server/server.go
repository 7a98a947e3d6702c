package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api/router"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/config"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Starts the coordinator daemon",
		Long: "Bootstraps the delegated wallet account, wires every component, " +
			"and serves the local UI-facing API until interrupted.",
		Run: func(_ *cobra.Command, _ []string) {
			runServer()
		},
	}
}

func runServer() {
	cfg := config.DefaultServiceConfigFromEnv()

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), time.Minute)
	s, err := api.InitServer(bootCtx, cfg)
	cancelBoot()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	router.Init(s)

	// Background loops stop with the daemon, not with any single request.
	loopCtx, cancelLoops := context.WithCancel(context.Background())
	go s.Balances.Run(loopCtx)
	go s.AutoSaver.Run(loopCtx)

	go func() {
		if err := s.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	cancelLoops()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	for _, err := range s.Shutdown(shutdownCtx) {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}
