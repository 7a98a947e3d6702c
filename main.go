package main

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/cmd/env"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/cmd/server"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/cmd/snapshot"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fabstir-llm-coordinator",
		Short: "Client-side session and payment coordinator for the Fabstir LLM marketplace",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(config.DefaultServiceConfigFromEnv().Logger)
		},
	}

	rootCmd.AddCommand(
		env.New(),
		server.New(),
		snapshot.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func configureLogger(cfg config.Logger) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.TimeFormat = "15:04:05"
		}))
	}
}
