package clilistfailed

import (
	"bytes"
	"fmt"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
)

type CmdResult struct {
	records []*core.TransferRecord
}

var _ common.ICommandResult = (*CmdResult)(nil)

func (r CmdResult) GetOutput() string {
	if len(r.records) == 0 {
		return "no failed transfers"
	}

	var buffer bytes.Buffer

	rows := make([]string, 0, len(r.records)+1)
	rows = append(rows, "RequestID|Origin|Nonce|Target|Amount|Attempts|LastError")

	for _, record := range r.records {
		rows = append(rows, fmt.Sprintf("%s|%s|%d|%s|%d|%d|%s",
			record.RequestID, record.Intent.OriginChainID, record.Intent.OriginNonce,
			record.Intent.TargetChainID, record.Intent.Amount, record.Attempts, record.LastError))
	}

	buffer.WriteString(common.FormatTable(rows))

	return buffer.String()
}
