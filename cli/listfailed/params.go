package clilistfailed

import (
	"fmt"
	"path/filepath"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	databaseaccess "github.com/Ethernal-Tech/token-bridge/relayer/database_access"
	"github.com/Ethernal-Tech/token-bridge/relayer/relayer_manager"
	"github.com/spf13/cobra"
)

const (
	configFlag = "config"

	configFlagDesc = "path to config json file"
)

type listFailedParams struct {
	config string
}

func (p *listFailedParams) validateFlags() error {
	if p.config == "" {
		return fmt.Errorf("missing %s flag", configFlag)
	}

	return nil
}

func (p *listFailedParams) setFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(
		&p.config,
		configFlag,
		"",
		configFlagDesc,
	)
}

func (p *listFailedParams) Execute(_ *common.OutputFormatter) (common.ICommandResult, error) {
	config, err := relayer_manager.LoadConfig(p.config)
	if err != nil {
		return nil, err
	}

	db, err := databaseaccess.NewDatabase(
		filepath.Join(config.DbsPath, relayer_manager.MainComponentName+".db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open relayer database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	records, err := db.GetTransfersByStatus(core.TransferStatusFailed)
	if err != nil {
		return nil, err
	}

	return &CmdResult{records: records}, nil
}
