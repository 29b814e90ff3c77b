package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"partybot-server-go/internal/domain/account"
)

// AddAccountRequest registers an account either from a one-time exchange
// code or from an existing device credential.
type AddAccountRequest struct {
	ExchangeCode string `json:"exchangeCode"`
	AccountID    string `json:"accountId"`
	DeviceID     string `json:"deviceId"`
	Secret       string `json:"secret"`
}

// @Summary List registered accounts
// @Tags Accounts
// @Produce json
// @Success 200 {object} APIResponse
// @Router /api/accounts [get]
func (h *Handlers) handleAccountsList(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, h.accounts.List(), "")
}

// @Summary Register an account
// @Description Accepts an exchange code, or an account id with a device id and secret.
// @Tags Accounts
// @Accept json
// @Produce json
// @Param body body AddAccountRequest true "Login material"
// @Success 201 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 503 {object} APIResponse "account login is not configured"
// @Router /api/accounts [post]
func (h *Handlers) handleAccountAdd(c *gin.Context) {
	var req AddAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if h.credentials == nil {
		RespondError(c, http.StatusServiceUnavailable, "account login is not configured", nil)
		return
	}

	ctx := c.Request.Context()
	var (
		acc *account.Account
		err error
	)
	switch {
	case req.ExchangeCode != "":
		token, exErr := h.credentials.ExchangeCode(ctx, req.ExchangeCode)
		if exErr != nil {
			respondErr(c, exErr)
			return
		}
		device, daErr := h.credentials.CreateDeviceAuth(ctx, token.AccountID, token.AccessToken)
		if daErr != nil {
			respondErr(c, daErr)
			return
		}
		acc, err = account.New(device.AccountID, token.DisplayName, device.DeviceID, device.Secret)
	case req.AccountID != "" && req.DeviceID != "" && req.Secret != "":
		// Exchanging once proves the credential and yields the display name.
		token, exErr := h.credentials.ExchangeDeviceAuth(ctx, req.AccountID, req.DeviceID, req.Secret)
		if exErr != nil {
			respondErr(c, exErr)
			return
		}
		acc, err = account.New(req.AccountID, token.DisplayName, req.DeviceID, req.Secret)
	default:
		RespondError(c, http.StatusBadRequest, "exchangeCode or accountId, deviceId and secret are required", nil)
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}

	if err := h.accounts.Add(ctx, acc); err != nil {
		respondErr(c, err)
		return
	}
	h.logger.Info("[HTTP] account %s (%s) registered", acc.DisplayName, acc.AccountID)
	RespondSuccess(c, http.StatusCreated, acc, "account registered")
}

// @Summary Remove an account
// @Tags Accounts
// @Produce json
// @Param id path string true "Account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account"
// @Router /api/accounts/{id} [delete]
func (h *Handlers) handleAccountRemove(c *gin.Context) {
	id := c.Param("id")
	removed, err := h.accounts.Remove(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	if !removed {
		RespondError(c, http.StatusNotFound, "unknown account "+id, nil)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "account removed")
}
