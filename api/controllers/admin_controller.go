package controllers

import (
	"net/http"

	apicore "github.com/Ethernal-Tech/token-bridge/api/core"
	"github.com/Ethernal-Tech/token-bridge/api/model/request"
	"github.com/Ethernal-Tech/token-bridge/api/model/response"
	"github.com/Ethernal-Tech/token-bridge/api/utils"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"github.com/hashicorp/go-hclog"
)

// AdminControllerImpl exposes the operator switch. Pausing stops new
// executions while detection keeps persisting transfers for later.
type AdminControllerImpl struct {
	relayer core.Relayer
	logger  hclog.Logger
}

var _ apicore.APIController = (*AdminControllerImpl)(nil)

func NewAdminController(relayer core.Relayer, logger hclog.Logger) *AdminControllerImpl {
	return &AdminControllerImpl{
		relayer: relayer,
		logger:  logger,
	}
}

func (*AdminControllerImpl) GetPathPrefix() string {
	return "Admin"
}

func (c *AdminControllerImpl) GetEndpoints() []*apicore.APIEndpoint {
	return []*apicore.APIEndpoint{
		{Path: "SetPaused", Method: http.MethodPost, Handler: c.setPaused, APIKeyAuth: true},
		{Path: "Health", Method: http.MethodGet, Handler: c.health},
	}
}

func (c *AdminControllerImpl) setPaused(w http.ResponseWriter, r *http.Request) {
	requestBody, ok := utils.DecodeModel[request.SetPausedRequest](w, r, c.logger)
	if !ok {
		return
	}

	c.relayer.SetPaused(requestBody.Paused)

	utils.WriteResponse(w, r, http.StatusOK, response.PauseResponse{
		Paused: c.relayer.IsPaused(),
	}, c.logger)
}

func (c *AdminControllerImpl) health(w http.ResponseWriter, r *http.Request) {
	utils.WriteResponse(w, r, http.StatusOK, response.HealthResponse{Healthy: true}, c.logger)
}
