package response

import (
	"time"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
)

type ErrorResponse struct {
	Err string `json:"err"`
}

type TransferResponse struct {
	RequestID        string    `json:"requestId"`
	Status           string    `json:"status"`
	OriginChainID    string    `json:"originChainId"`
	OriginNonce      uint64    `json:"originNonce"`
	TargetChainID    string    `json:"targetChainId"`
	Recipient        string    `json:"recipient"`
	Amount           uint64    `json:"amount"`
	Attempts         uint64    `json:"attempts"`
	LastError        string    `json:"lastError,omitempty"`
	DestinationTxRef string    `json:"destinationTxRef,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func NewTransferResponse(record *core.TransferRecord) TransferResponse {
	destinationTxRef := ""
	if record.DestinationTxRef != (common.Hash{}) {
		destinationTxRef = record.DestinationTxRef.String()
	}

	return TransferResponse{
		RequestID:        record.RequestID.String(),
		Status:           string(record.Status),
		OriginChainID:    record.Intent.OriginChainID,
		OriginNonce:      record.Intent.OriginNonce,
		TargetChainID:    record.Intent.TargetChainID,
		Recipient:        record.Intent.Recipient,
		Amount:           record.Intent.Amount,
		Attempts:         record.Attempts,
		LastError:        record.LastError,
		DestinationTxRef: destinationTxRef,
		UpdatedAt:        record.UpdatedAt,
	}
}

type SubmitApprovalResponse struct {
	RequestID string `json:"requestId"`
	State     string `json:"state"`
}

type PauseResponse struct {
	Paused bool `json:"paused"`
}

type HealthResponse struct {
	Healthy bool `json:"healthy"`
}
