package request

type SubmitApprovalRequest struct {
	RequestID   string `json:"requestId"`
	ValidatorID string `json:"validatorId"`
	Recipient   string `json:"recipient"`
	Amount      uint64 `json:"amount"`
	SourceTxRef string `json:"sourceTxRef"`
}

type SetPausedRequest struct {
	Paused bool `json:"paused"`
}
