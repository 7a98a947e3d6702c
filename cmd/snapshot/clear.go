package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/api"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/config"
)

func newClear() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Dismisses the stored recovery snapshot",
		Run: func(_ *cobra.Command, _ []string) {
			cfg := config.DefaultServiceConfigFromEnv()
			store, err := api.NewSnapshotStore(cfg, api.NewClock())
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to open snapshot store")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := store.Clear(ctx); err != nil {
				log.Fatal().Err(err).Msg("Failed to clear snapshot")
			}
			fmt.Println("Snapshot cleared.")
		},
	}
}
