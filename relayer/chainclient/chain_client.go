package chainclient

import (
	"fmt"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"github.com/hashicorp/go-hclog"
)

// NewChainClient returns the bundled client for the configured chain type.
// Only EVM chains ship with a client, other chain types plug in through the
// core.ChainClient interface.
func NewChainClient(config *core.ChainConfig, logger hclog.Logger) (core.ChainClient, error) {
	switch config.ChainType {
	case common.ChainTypeEVMStr:
		return NewEVMChainClient(config, logger)
	default:
		return nil, fmt.Errorf("no bundled client for chain type: %s", config.ChainType)
	}
}
