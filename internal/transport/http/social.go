package httptransport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"partybot-server-go/internal/domain/stream"
)

// StatusRequest sets a custom presence status.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`

	// Mode is the presence show value; empty means online.
	Mode string `json:"mode"`
}

// handlePartyGet serves the mirrored party, fetching a snapshot for accounts
// without a live stream.
//
// @Summary Read the mirrored party
// @Tags Party
// @Produce json
// @Param id path string true "Account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account"
// @Router /api/party/{id} [get]
func (h *Handlers) handlePartyGet(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	party := h.mirror.Party(id)
	if party == nil {
		var err error
		if party, err = h.mirror.RefreshParty(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
	}
	RespondSuccess(c, http.StatusOK, party, "")
}

// @Summary Read the mirrored friends list
// @Tags Friends
// @Produce json
// @Param id path string true "Account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account"
// @Router /api/friends/{id} [get]
func (h *Handlers) handleFriendsGet(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	friends := h.mirror.Friends(id)
	if friends == nil {
		if err := h.mirror.RefreshFriends(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
		friends = h.mirror.Friends(id)
	}
	RespondSuccess(c, http.StatusOK, friends, "")
}

// @Summary Set a custom presence status
// @Tags Status
// @Accept json
// @Produce json
// @Param id path string true "Account id"
// @Param body body StatusRequest true "Status text and mode"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account"
// @Router /api/status/{id} [put]
func (h *Handlers) handleStatusPut(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "status is required", nil)
		return
	}
	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = "online"
	}

	ctx := c.Request.Context()
	sess, err := h.sessions.Acquire(ctx, id, stream.PurposePresence)
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := sess.SetStatus(ctx, req.Status, mode); err != nil {
		respondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"status": req.Status, "mode": mode}, "status updated")
}

// handleStatusDelete clears the custom status and releases the presence
// purpose, closing the stream when nothing else holds it.
//
// @Summary Clear the custom presence status
// @Tags Status
// @Produce json
// @Param id path string true "Account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account or no stream"
// @Router /api/status/{id} [delete]
func (h *Handlers) handleStatusDelete(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	sess, ok := h.sessions.Get(id)
	if !ok {
		RespondError(c, http.StatusNotFound, "no stream for account "+id, nil)
		return
	}
	if err := sess.ResetStatus(c.Request.Context()); err != nil && !errors.Is(err, stream.ErrNotEstablished) {
		h.logger.Warn("[HTTP] resetting status of %s failed: %v", id, err)
	}
	sess.RemovePurpose(stream.PurposePresence)
	RespondSuccess(c, http.StatusOK, nil, "status cleared")
}
