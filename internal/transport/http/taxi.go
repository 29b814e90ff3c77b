package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"partybot-server-go/internal/domain/taxi"
)

// @Summary List taxi accounts
// @Tags Taxi
// @Produce json
// @Success 200 {object} APIResponse
// @Router /api/taxi [get]
func (h *Handlers) handleTaxiList(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, h.taxis.List(), "")
}

// @Summary Read one taxi
// @Tags Taxi
// @Produce json
// @Param id path string true "Account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "not running as a taxi"
// @Router /api/taxi/{id} [get]
func (h *Handlers) handleTaxiGet(c *gin.Context) {
	snap, ok := h.taxis.Status(c.Param("id"))
	if !ok {
		respondErr(c, taxi.ErrNotRunning)
		return
	}
	RespondSuccess(c, http.StatusOK, snap, "")
}

// @Summary Start or reconfigure a taxi
// @Description Empty fields take the configured defaults.
// @Tags Taxi
// @Accept json
// @Produce json
// @Param id path string true "Account id"
// @Param body body taxi.Settings false "Taxi settings"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account"
// @Router /api/taxi/{id} [put]
func (h *Handlers) handleTaxiPut(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	var settings taxi.Settings
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&settings); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid settings", nil)
			return
		}
	}
	if err := h.taxis.Start(c.Request.Context(), id, settings); err != nil {
		respondErr(c, err)
		return
	}
	snap, _ := h.taxis.Status(id)
	RespondSuccess(c, http.StatusOK, snap, "taxi running")
}

// @Summary Stop a taxi
// @Tags Taxi
// @Produce json
// @Param id path string true "Account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "not running as a taxi"
// @Router /api/taxi/{id} [delete]
func (h *Handlers) handleTaxiDelete(c *gin.Context) {
	if err := h.taxis.Stop(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "taxi stopped")
}
