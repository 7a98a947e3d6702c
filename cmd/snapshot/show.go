package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/config"
)

func newShow() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Prints the stored recovery snapshot, if any",
		Run: func(_ *cobra.Command, _ []string) {
			cfg := config.DefaultServiceConfigFromEnv()
			store, err := api.NewSnapshotStore(cfg, api.NewClock())
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to open snapshot store")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			snap, err := store.Load(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to load snapshot")
			}
			if snap == nil {
				fmt.Println("No recoverable session.")
				return
			}

			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to marshal snapshot")
			}
			fmt.Println(string(data))
		},
	}
}
