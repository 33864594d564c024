package controllers

import (
	"errors"
	"fmt"
	"net/http"

	apicore "github.com/Ethernal-Tech/token-bridge/api/core"
	"github.com/Ethernal-Tech/token-bridge/api/model/request"
	"github.com/Ethernal-Tech/token-bridge/api/model/response"
	"github.com/Ethernal-Tech/token-bridge/api/utils"
	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"github.com/hashicorp/go-hclog"
)

type TransferControllerImpl struct {
	db      core.Database
	relayer core.Relayer
	logger  hclog.Logger
}

var _ apicore.APIController = (*TransferControllerImpl)(nil)

func NewTransferController(
	db core.Database, relayer core.Relayer, logger hclog.Logger,
) *TransferControllerImpl {
	return &TransferControllerImpl{
		db:      db,
		relayer: relayer,
		logger:  logger,
	}
}

func (*TransferControllerImpl) GetPathPrefix() string {
	return "Transfer"
}

func (c *TransferControllerImpl) GetEndpoints() []*apicore.APIEndpoint {
	return []*apicore.APIEndpoint{
		{Path: "Get", Method: http.MethodGet, Handler: c.get, APIKeyAuth: true},
		{Path: "GetByStatus", Method: http.MethodGet, Handler: c.getByStatus, APIKeyAuth: true},
		{Path: "SubmitApproval", Method: http.MethodPost, Handler: c.submitApproval, APIKeyAuth: true},
	}
}

func (c *TransferControllerImpl) get(w http.ResponseWriter, r *http.Request) {
	queryValues := r.URL.Query()

	requestIDArr, exists := queryValues["requestId"]
	if !exists || len(requestIDArr) == 0 {
		utils.WriteErrorResponse(
			w, r, http.StatusBadRequest, errors.New("requestId missing from query"), c.logger)

		return
	}

	requestID := common.NewHashFromHexString(requestIDArr[0])

	record, err := c.db.GetTransfer(requestID)
	if err != nil {
		utils.WriteErrorResponse(w, r, http.StatusInternalServerError, err, c.logger)

		return
	}

	if record == nil {
		utils.WriteErrorResponse(
			w, r, http.StatusNotFound, fmt.Errorf("transfer not found: %s", requestIDArr[0]), c.logger)

		return
	}

	utils.WriteResponse(w, r, http.StatusOK, response.NewTransferResponse(record), c.logger)
}

func (c *TransferControllerImpl) getByStatus(w http.ResponseWriter, r *http.Request) {
	queryValues := r.URL.Query()

	statusArr, exists := queryValues["status"]
	if !exists || len(statusArr) == 0 {
		utils.WriteErrorResponse(
			w, r, http.StatusBadRequest, errors.New("status missing from query"), c.logger)

		return
	}

	records, err := c.db.GetTransfersByStatus(core.TransferStatus(statusArr[0]))
	if err != nil {
		utils.WriteErrorResponse(w, r, http.StatusInternalServerError, err, c.logger)

		return
	}

	transfers := make([]response.TransferResponse, 0, len(records))
	for _, record := range records {
		transfers = append(transfers, response.NewTransferResponse(record))
	}

	utils.WriteResponse(w, r, http.StatusOK, transfers, c.logger)
}

func (c *TransferControllerImpl) submitApproval(w http.ResponseWriter, r *http.Request) {
	requestBody, ok := utils.DecodeModel[request.SubmitApprovalRequest](w, r, c.logger)
	if !ok {
		return
	}

	if requestBody.ValidatorID == "" {
		utils.WriteErrorResponse(
			w, r, http.StatusBadRequest, errors.New("validatorId missing from request"), c.logger)

		return
	}

	requestID := common.NewHashFromHexString(requestBody.RequestID)
	claim := core.ApprovalClaim{
		Recipient:   requestBody.Recipient,
		Amount:      requestBody.Amount,
		SourceTxRef: common.NewHashFromHexString(requestBody.SourceTxRef),
	}

	state, err := c.relayer.SubmitExternalApproval(requestID, requestBody.ValidatorID, claim)
	if err != nil {
		status := http.StatusInternalServerError
		if common.IsConflictErr(err) {
			status = http.StatusConflict
		}

		utils.WriteErrorResponse(w, r, status, err, c.logger)

		return
	}

	c.logger.Info("external approval accepted",
		"requestID", requestID, "validatorID", requestBody.ValidatorID, "state", state)

	utils.WriteResponse(w, r, http.StatusOK, response.SubmitApprovalResponse{
		RequestID: requestID.String(),
		State:     state.String(),
	}, c.logger)
}
