package cli

import (
	"fmt"
	"os"

	cligenerateconfigs "github.com/Ethernal-Tech/token-bridge/cli/generateconfigs"
	clilistfailed "github.com/Ethernal-Tech/token-bridge/cli/listfailed"
	clirelayer "github.com/Ethernal-Tech/token-bridge/cli/relayer"
	cliversion "github.com/Ethernal-Tech/token-bridge/cli/version"
	"github.com/spf13/cobra"
)

type RootCommand struct {
	baseCmd *cobra.Command
}

func NewRootCommand() *RootCommand {
	rootCommand := &RootCommand{
		baseCmd: &cobra.Command{
			Short: "cli commands for the token bridge relayer",
		},
	}

	rootCommand.registerSubCommands()

	return rootCommand
}

func (rc *RootCommand) registerSubCommands() {
	rc.baseCmd.AddCommand(
		clirelayer.GetRunRelayerCommand(),
		cligenerateconfigs.GetGenerateConfigsCommand(),
		clilistfailed.GetListFailedCommand(),
		cliversion.GetVersionCommand(),
	)
}

func (rc *RootCommand) Execute() {
	if err := rc.baseCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(1)
	}
}
