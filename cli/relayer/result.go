package clirelayer

import "github.com/Ethernal-Tech/token-bridge/common"

type CmdResult struct{}

var _ common.ICommandResult = (*CmdResult)(nil)

func (r CmdResult) GetOutput() string {
	return "relayer stopped"
}
