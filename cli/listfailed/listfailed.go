package clilistfailed

import (
	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/spf13/cobra"
)

var paramsData = &listFailedParams{}

func GetListFailedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list-failed",
		Short:   "lists transfers that failed permanently",
		PreRunE: runPreRun,
		Run:     common.GetCliRunCommand(paramsData),
	}

	paramsData.setFlags(cmd)

	return cmd
}

func runPreRun(_ *cobra.Command, _ []string) error {
	return paramsData.validateFlags()
}
