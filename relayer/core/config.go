package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ethernal-Tech/cardano-infrastructure/logger"
	apicore "github.com/Ethernal-Tech/token-bridge/api/core"
	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/telemetry"
)

type ChainConfig struct {
	ChainID           string          `json:"-"`
	ChainType         string          `json:"chainType"`
	FinalityDepth     uint64          `json:"finalityDepth"`
	StartBlock        uint64          `json:"startBlock"`
	MinTransferAmount uint64          `json:"minTransferAmount"`
	MaxTransferAmount uint64          `json:"maxTransferAmount"`
	PollTimeMillis    uint64          `json:"pollTime"`
	ChainSpecific     json.RawMessage `json:"chainSpecific,omitempty"`
}

type AppConfig struct {
	ValidatorID          string                  `json:"validatorId"`
	Chains               map[string]*ChainConfig `json:"chains"`
	ApprovalThreshold    int                     `json:"approvalThreshold"`
	ApprovalTTL          time.Duration           `json:"approvalTtl"`
	RetryBaseDelay       time.Duration           `json:"retryBaseDelay"`
	RetryMaxAttempts     uint64                  `json:"retryMaxAttempts"`
	RetryWarningAttempts uint64                  `json:"retryWarningAttempts"`
	RequeueTime          time.Duration           `json:"requeueTime"`
	RetentionPeriod      time.Duration           `json:"retentionPeriod"`
	DbsPath              string                  `json:"dbsPath"`
	APIConfig            apicore.APIConfig       `json:"api"`
	Telemetry            telemetry.Config        `json:"telemetry"`
	Logger               logger.LoggerConfig     `json:"logger"`
}

func (config *AppConfig) FillOut() {
	for chainID, chainConfig := range config.Chains {
		chainConfig.ChainID = chainID

		if chainConfig.PollTimeMillis == 0 {
			chainConfig.PollTimeMillis = 2000
		}
	}

	if config.ApprovalThreshold <= 0 {
		config.ApprovalThreshold = 1
	}

	if config.ApprovalTTL == 0 {
		config.ApprovalTTL = 24 * time.Hour
	}

	if config.RetryBaseDelay == 0 {
		config.RetryBaseDelay = time.Second
	}

	if config.RetryMaxAttempts == 0 {
		config.RetryMaxAttempts = 8
	}

	if config.RetryWarningAttempts == 0 {
		config.RetryWarningAttempts = 3
	}

	if config.RequeueTime == 0 {
		config.RequeueTime = 10 * time.Second
	}

	if config.RetentionPeriod == 0 {
		config.RetentionPeriod = 7 * 24 * time.Hour
	}
}

func (config *AppConfig) Validate() error {
	if len(config.Chains) < 2 {
		return fmt.Errorf("at least two chains are required, got: %d", len(config.Chains))
	}

	for chainID, chainConfig := range config.Chains {
		switch chainConfig.ChainType {
		case common.ChainTypeEVMStr, common.ChainTypeCardanoStr, common.ChainTypeSolanaStr:
		default:
			return fmt.Errorf("unknown chain type for chain %s: %s", chainID, chainConfig.ChainType)
		}

		if chainConfig.MaxTransferAmount != 0 &&
			chainConfig.MaxTransferAmount < chainConfig.MinTransferAmount {
			return fmt.Errorf("invalid transfer bounds for chain %s: min %d > max %d",
				chainID, chainConfig.MinTransferAmount, chainConfig.MaxTransferAmount)
		}
	}

	if config.ValidatorID == "" {
		return fmt.Errorf("validatorId not set")
	}

	return nil
}
