package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"partybot-server-go/internal/domain/automation"
)

// @Summary List automations
// @Tags Automation
// @Produce json
// @Success 200 {object} APIResponse
// @Router /api/automation [get]
func (h *Handlers) handleAutomationList(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, h.automations.List(), "")
}

// @Summary Read one automation
// @Tags Automation
// @Produce json
// @Param id path string true "Account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "not automated"
// @Router /api/automation/{id} [get]
func (h *Handlers) handleAutomationGet(c *gin.Context) {
	snap, ok := h.automations.Status(c.Param("id"))
	if !ok {
		respondErr(c, automation.ErrNotRunning)
		return
	}
	RespondSuccess(c, http.StatusOK, snap, "")
}

// handleAutomationPut starts or reconfigures the automation. Settings with
// nothing enabled stop it.
//
// @Summary Start, reconfigure or stop an automation
// @Tags Automation
// @Accept json
// @Produce json
// @Param id path string true "Account id"
// @Param body body automation.Settings true "Automation settings"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account"
// @Router /api/automation/{id} [put]
func (h *Handlers) handleAutomationPut(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	settings := automation.DefaultSettings()
	if err := c.ShouldBindJSON(&settings); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid settings", nil)
		return
	}

	ctx := c.Request.Context()
	if !settings.Enabled() {
		if err := h.automations.Stop(ctx, id); err != nil && !errors.Is(err, automation.ErrNotRunning) {
			respondErr(c, err)
			return
		}
		RespondSuccess(c, http.StatusOK, nil, "automation stopped")
		return
	}

	if err := h.automations.Start(ctx, id, settings); err != nil {
		respondErr(c, err)
		return
	}
	snap, _ := h.automations.Status(id)
	RespondSuccess(c, http.StatusOK, snap, "automation running")
}

// @Summary Stop an automation
// @Tags Automation
// @Produce json
// @Param id path string true "Account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "not automated"
// @Router /api/automation/{id} [delete]
func (h *Handlers) handleAutomationDelete(c *gin.Context) {
	if err := h.automations.Stop(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "automation stopped")
}
