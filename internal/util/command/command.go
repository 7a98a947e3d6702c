package command

import (
	"github.com/spf13/cobra"
)

// NewSubcommandGroup returns a cobra command that only exists to group the
// given subcommands. Invoking the group itself prints usage.
func NewSubcommandGroup(name string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use: name,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	for _, sub := range subcommands {
		cmd.AddCommand(sub)
	}

	return cmd
}
