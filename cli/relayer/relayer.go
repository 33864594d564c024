package clirelayer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Ethernal-Tech/cardano-infrastructure/logger"
	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"github.com/Ethernal-Tech/token-bridge/relayer/relayer_manager"
	"github.com/spf13/cobra"
)

const defaultConfigFileName = "relayer_config.json"

var initParamsData = &initParams{}

func GetRunRelayerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run-relayer",
		Short:   "runs the bridge relayer",
		PreRunE: runPreRun,
		Run:     runCommand,
	}

	initParamsData.setFlags(cmd)

	return cmd
}

func runPreRun(_ *cobra.Command, _ []string) error {
	return initParamsData.validateFlags()
}

func runCommand(cmd *cobra.Command, _ []string) {
	outputter := common.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	config, err := loadConfig(initParamsData)
	if err != nil {
		outputter.SetError(err)

		return
	}

	appLogger, err := logger.NewLogger(config.Logger)
	if err != nil {
		outputter.SetError(fmt.Errorf("failed to create logger: %w", err))

		return
	}

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	relayerManager, err := relayer_manager.NewRelayerManager(ctx, config, appLogger)
	if err != nil {
		outputter.SetError(fmt.Errorf("failed to create relayer manager: %w", err))

		return
	}

	if err := relayerManager.Start(); err != nil {
		outputter.SetError(fmt.Errorf("failed to start relayer manager: %w", err))

		return
	}

	defer relayerManager.Stop() //nolint:errcheck

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)

	<-signalChannel

	outputter.SetCommandResult(&CmdResult{})
}

func loadConfig(initParamsData *initParams) (*core.AppConfig, error) {
	configPath := initParamsData.config

	if configPath == "" {
		ex, err := os.Executable()
		if err != nil {
			return nil, err
		}

		configPath = filepath.Join(filepath.Dir(ex), defaultConfigFileName)
	}

	config, err := relayer_manager.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return config, nil
}
