package relayer_manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Ethernal-Tech/token-bridge/api"
	apicontrollers "github.com/Ethernal-Tech/token-bridge/api/controllers"
	apicore "github.com/Ethernal-Tech/token-bridge/api/core"
	apiutils "github.com/Ethernal-Tech/token-bridge/api/utils"
	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/aggregator"
	"github.com/Ethernal-Tech/token-bridge/relayer/chain"
	"github.com/Ethernal-Tech/token-bridge/relayer/chainclient"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	databaseaccess "github.com/Ethernal-Tech/token-bridge/relayer/database_access"
	"github.com/Ethernal-Tech/token-bridge/relayer/executor"
	"github.com/Ethernal-Tech/token-bridge/relayer/processor"
	"github.com/Ethernal-Tech/token-bridge/relayer/relayer"
	"github.com/Ethernal-Tech/token-bridge/telemetry"
	"github.com/hashicorp/go-hclog"
)

const (
	MainComponentName = "relayer"

	eventsChSize = 1024
)

type RelayerManagerImpl struct {
	ctx        context.Context
	config     *core.AppConfig
	db         core.Database
	aggregator *aggregator.ApprovalAggregatorImpl
	relayer    *relayer.RelayerImpl
	api        apicore.API
	telemetry  *telemetry.Telemetry
	eventsCh   *common.SafeCh[core.ChainEvent]
	logger     hclog.Logger
}

var _ core.RelayerManager = (*RelayerManagerImpl)(nil)

func NewRelayerManager(
	ctx context.Context, config *core.AppConfig, logger hclog.Logger,
) (*RelayerManagerImpl, error) {
	telemetry := telemetry.NewTelemetry(config.Telemetry, logger.Named("telemetry"))

	db, err := databaseaccess.NewDatabase(filepath.Join(config.DbsPath, MainComponentName+".db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open relayer database: %w", err)
	}

	approvalAggregator := aggregator.NewApprovalAggregator(
		config.ApprovalThreshold, config.ApprovalTTL, logger.Named("aggregator"))

	eventsCh := common.MakeSafeCh[core.ChainEvent](eventsChSize)

	executors := make(map[string]core.TxExecutor, len(config.Chains))
	watchers := make([]core.ChainWatcher, 0, len(config.Chains))

	for chainID, chainConfig := range config.Chains {
		client, err := chainclient.NewChainClient(
			chainConfig, logger.Named("chain_client").Named(strings.ToUpper(chainID)))
		if err != nil {
			return nil, fmt.Errorf("failed to create client for chain %s: %w", chainID, err)
		}

		executors[chainID] = executor.NewTxExecutor(
			client, config.RetryBaseDelay, config.RetryMaxAttempts,
			logger.Named("executor").Named(strings.ToUpper(chainID)))

		watchers = append(watchers, chain.NewChainWatcher(
			chainConfig, client, db, eventsCh,
			logger.Named("watcher").Named(strings.ToUpper(chainID))))
	}

	transferProcessor := processor.NewTransferProcessor(
		config, db, approvalAggregator, executors, logger.Named("processor"))

	relayerImpl := relayer.NewRelayer(
		config, db, transferProcessor, transferProcessor.Fail,
		approvalAggregator, watchers, eventsCh, logger.Named("relayer"))

	// quorum callbacks re-dispatch through the relayer, registered before
	// anything can feed the aggregator
	approvalAggregator.OnApproved(relayerImpl.OnApprovalReached(ctx))
	approvalAggregator.OnExpired(relayerImpl.OnApprovalExpired(ctx))

	apiLogger, err := apiutils.NewAPILogger(config.Logger)
	if err != nil {
		return nil, err
	}

	apiObj, err := api.NewAPI(ctx, config.APIConfig, []apicore.APIController{
		apicontrollers.NewTransferController(db, relayerImpl, apiLogger.Named("transfer_controller")),
		apicontrollers.NewAdminController(relayerImpl, apiLogger.Named("admin_controller")),
	}, apiLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create api: %w", err)
	}

	return &RelayerManagerImpl{
		ctx:        ctx,
		config:     config,
		db:         db,
		aggregator: approvalAggregator,
		relayer:    relayerImpl,
		api:        apiObj,
		telemetry:  telemetry,
		eventsCh:   eventsCh,
		logger:     logger,
	}, nil
}

func (rm *RelayerManagerImpl) Start() error {
	if err := rm.telemetry.Start(); err != nil {
		return fmt.Errorf("failed to start telemetry: %w", err)
	}

	go rm.api.Start()

	go func() {
		if err := rm.relayer.Start(rm.ctx); err != nil {
			rm.logger.Error("relayer stopped with error", "err", err)
		}
	}()

	rm.logger.Debug("Relayer manager started", "chains", len(rm.config.Chains))

	return nil
}

func (rm *RelayerManagerImpl) Stop() error {
	rm.logger.Info("Stopping relayer manager")

	errs := make([]error, 0)

	if err := rm.api.Dispose(); err != nil {
		errs = append(errs, fmt.Errorf("error while disposing api: %w", err))
	}

	if err := rm.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close relayer database: %w", err))
	}

	if err := rm.telemetry.Close(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("failed to close telemetry: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while stopping relayer manager: %w", errors.Join(errs...))
	}

	return nil
}

func LoadConfig(path string) (*core.AppConfig, error) {
	config, err := common.LoadJSON[core.AppConfig](path)
	if err != nil {
		return nil, err
	}

	config.FillOut()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
