package cligenerateconfigs

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Ethernal-Tech/cardano-infrastructure/logger"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	apicore "github.com/Ethernal-Tech/token-bridge/api/core"
	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/chainclient"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"github.com/Ethernal-Tech/token-bridge/telemetry"
)

const (
	validatorIDFlag        = "validator-id"
	sourceNodeURLFlag      = "source-node-url"
	sourceBridgeAddrFlag   = "source-bridge-addr"
	targetNodeURLFlag      = "target-node-url"
	targetBridgeAddrFlag   = "target-bridge-addr"
	approvalThresholdFlag  = "approval-threshold"
	dbsPathFlag            = "dbs-path"
	logsPathFlag           = "logs-path"
	apiPortFlag            = "api-port"
	apiKeysFlag            = "api-keys"
	outputDirFlag          = "output-dir"
	outputFileFlag         = "output-file-name"
	telemetryAddrFlag      = "telemetry"

	validatorIDFlagDesc       = "validator identifier used when approving transfers"
	sourceNodeURLFlagDesc     = "json-rpc url of the source chain node"
	sourceBridgeAddrFlagDesc  = "bridge contract address on the source chain"
	targetNodeURLFlagDesc     = "json-rpc url of the target chain node"
	targetBridgeAddrFlagDesc  = "bridge contract address on the target chain"
	approvalThresholdFlagDesc = "number of validator approvals required per transfer"
	dbsPathFlagDesc           = "path to the directory for databases"
	logsPathFlagDesc          = "path to the directory for logs"
	apiPortFlagDesc           = "port at which the api runs"
	apiKeysFlagDesc           = "api keys for the relayer api"
	outputDirFlagDesc         = "config generation output directory"
	outputFileFlagDesc        = "config file name"
	telemetryAddrFlagDesc     = "prometheus and datadog telemetry addresses (prometheusip:port,datadogip:port)"

	defaultOutputDir      = "./"
	defaultOutputFileName = "relayer_config.json"
	defaultDbsPath        = "./db"
	defaultLogsPath       = "./logs"
	defaultAPIPort        = 10000
)

type generateConfigsParams struct {
	validatorID       string
	sourceNodeURL     string
	sourceBridgeAddr  string
	targetNodeURL     string
	targetBridgeAddr  string
	approvalThreshold int
	dbsPath           string
	logsPath          string
	apiPort           uint32
	apiKeys           []string
	outputDir         string
	outputFileName    string
	telemetryAddr     string
}

func (p *generateConfigsParams) validateFlags() error {
	if p.validatorID == "" {
		return fmt.Errorf("missing %s flag", validatorIDFlag)
	}

	if p.sourceNodeURL == "" || p.targetNodeURL == "" {
		return fmt.Errorf("both %s and %s are required", sourceNodeURLFlag, targetNodeURLFlag)
	}

	if !common.IsValidEVMAddress(p.sourceBridgeAddr) || !common.IsValidEVMAddress(p.targetBridgeAddr) {
		return fmt.Errorf("invalid bridge contract address")
	}

	if len(p.apiKeys) == 0 {
		return fmt.Errorf("specify at least one %s", apiKeysFlag)
	}

	return nil
}

func (p *generateConfigsParams) setFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.validatorID, validatorIDFlag, "", validatorIDFlagDesc)
	cmd.Flags().StringVar(&p.sourceNodeURL, sourceNodeURLFlag, "", sourceNodeURLFlagDesc)
	cmd.Flags().StringVar(&p.sourceBridgeAddr, sourceBridgeAddrFlag, "", sourceBridgeAddrFlagDesc)
	cmd.Flags().StringVar(&p.targetNodeURL, targetNodeURLFlag, "", targetNodeURLFlagDesc)
	cmd.Flags().StringVar(&p.targetBridgeAddr, targetBridgeAddrFlag, "", targetBridgeAddrFlagDesc)
	cmd.Flags().IntVar(&p.approvalThreshold, approvalThresholdFlag, 1, approvalThresholdFlagDesc)
	cmd.Flags().StringVar(&p.dbsPath, dbsPathFlag, defaultDbsPath, dbsPathFlagDesc)
	cmd.Flags().StringVar(&p.logsPath, logsPathFlag, defaultLogsPath, logsPathFlagDesc)
	cmd.Flags().Uint32Var(&p.apiPort, apiPortFlag, defaultAPIPort, apiPortFlagDesc)
	cmd.Flags().StringArrayVar(&p.apiKeys, apiKeysFlag, nil, apiKeysFlagDesc)
	cmd.Flags().StringVar(&p.outputDir, outputDirFlag, defaultOutputDir, outputDirFlagDesc)
	cmd.Flags().StringVar(&p.outputFileName, outputFileFlag, defaultOutputFileName, outputFileFlagDesc)
	cmd.Flags().StringVar(&p.telemetryAddr, telemetryAddrFlag, "", telemetryAddrFlagDesc)
}

func (p *generateConfigsParams) Execute(_ *common.OutputFormatter) (common.ICommandResult, error) {
	telemetryConfig := telemetry.Config{}
	if p.telemetryAddr != "" {
		prometheusAddr, dataDogAddr, err := telemetry.ParseTelemetryAddrs(p.telemetryAddr)
		if err != nil {
			return nil, err
		}

		telemetryConfig.PrometheusAddr = prometheusAddr
		telemetryConfig.DataDogAddr = dataDogAddr
	}

	sourceChainSpecific, err := json.Marshal(chainclient.EVMChainConfig{
		NodeURL:       p.sourceNodeURL,
		BridgeAddress: p.sourceBridgeAddr,
	})
	if err != nil {
		return nil, err
	}

	targetChainSpecific, err := json.Marshal(chainclient.EVMChainConfig{
		NodeURL:       p.targetNodeURL,
		BridgeAddress: p.targetBridgeAddr,
	})
	if err != nil {
		return nil, err
	}

	config := &core.AppConfig{
		ValidatorID: p.validatorID,
		Chains: map[string]*core.ChainConfig{
			common.ChainIDStrAlpha: {
				ChainType:     common.ChainTypeEVMStr,
				FinalityDepth: 12,
				ChainSpecific: sourceChainSpecific,
			},
			common.ChainIDStrBeta: {
				ChainType:     common.ChainTypeEVMStr,
				FinalityDepth: 12,
				ChainSpecific: targetChainSpecific,
			},
		},
		ApprovalThreshold: p.approvalThreshold,
		ApprovalTTL:       24 * time.Hour,
		RetryBaseDelay:    time.Second,
		RetryMaxAttempts:  8,
		RequeueTime:       10 * time.Second,
		RetentionPeriod:   7 * 24 * time.Hour,
		DbsPath:           p.dbsPath,
		APIConfig: apicore.APIConfig{
			Port:           p.apiPort,
			PathPrefix:     "api",
			AllowedHeaders: []string{"Content-Type", "X-API-Key"},
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			APIKeyHeader:   "X-API-Key",
			APIKeys:        p.apiKeys,
		},
		Telemetry: telemetryConfig,
		Logger: logger.LoggerConfig{
			LogFilePath:   filepath.Join(p.logsPath, "relayer.log"),
			LogLevel:      hclog.Debug,
			JSONLogFormat: false,
			AppendFile:    true,
		},
	}

	config.FillOut()

	outputPath := filepath.Join(p.outputDir, p.outputFileName)

	if err := common.SaveJSON(outputPath, config, true); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}

	return &CmdResult{configPath: outputPath}, nil
}
