package snapshot

import (
	"github.com/spf13/cobra"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/util/command"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("snapshot",
		newShow(),
		newClear(),
	)
}
