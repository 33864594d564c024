package cligenerateconfigs

import (
	"bytes"
	"fmt"

	"github.com/Ethernal-Tech/token-bridge/common"
)

type CmdResult struct {
	configPath string
}

var _ common.ICommandResult = (*CmdResult)(nil)

func (r CmdResult) GetOutput() string {
	var buffer bytes.Buffer

	buffer.WriteString(common.FormatKV(
		[]string{
			fmt.Sprintf("Relayer config|%s", r.configPath),
		}))

	return buffer.String()
}
