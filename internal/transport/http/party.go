package httptransport

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"partybot-server-go/internal/domain/epic"
)

// PrivacyRequest switches a party between the public and private presets.
type PrivacyRequest struct {
	Privacy string `json:"privacy" binding:"required"`
}

// currentParty resolves the party of accountID, fetching a snapshot when the
// mirror has none. It answers 404 when the account is in no party.
func (h *Handlers) currentParty(c *gin.Context, accountID string) (*epic.Party, bool) {
	party := h.mirror.Party(accountID)
	if party == nil {
		var err error
		if party, err = h.mirror.RefreshParty(c.Request.Context(), accountID); err != nil {
			respondErr(c, err)
			return nil, false
		}
	}
	if party == nil {
		RespondError(c, http.StatusNotFound, "account "+accountID+" is not in a party", nil)
		return nil, false
	}
	return party, true
}

// partyMember is currentParty plus a membership check of the :member param.
func (h *Handlers) partyMember(c *gin.Context) (string, *epic.Party, string, bool) {
	id, ok := h.knownAccount(c)
	if !ok {
		return "", nil, "", false
	}
	member := c.Param("member")
	if member == id {
		RespondError(c, http.StatusBadRequest, "member must be another account", nil)
		return "", nil, "", false
	}
	party, ok := h.currentParty(c, id)
	if !ok {
		return "", nil, "", false
	}
	if party.Member(member) == nil {
		RespondError(c, http.StatusNotFound, member+" is not in party "+party.ID, nil)
		return "", nil, "", false
	}
	return id, party, member, true
}

// refreshParty re-reads the party after a mutation for accounts whose stream
// does not deliver the change.
func (h *Handlers) refreshParty(ctx context.Context, accountID string) {
	if _, err := h.mirror.RefreshParty(ctx, accountID); err != nil {
		h.logger.Warn("[HTTP] refreshing party of %s failed: %v", accountID, err)
	}
}

// @Summary Leave the current party
// @Tags Party
// @Produce json
// @Param id path string true "Account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account or no party"
// @Router /api/party/{id}/leave [post]
func (h *Handlers) handlePartyLeave(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	party, ok := h.currentParty(c, id)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.parties.Leave(ctx, id, party.ID); err != nil {
		respondErr(c, err)
		return
	}
	h.refreshParty(ctx, id)
	RespondSuccess(c, http.StatusOK, gin.H{"partyId": party.ID}, "left party")
}

// @Summary Kick a party member
// @Description The account must be the party captain.
// @Tags Party
// @Produce json
// @Param id path string true "Account id"
// @Param member path string true "Member account id"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account, no party or not a member"
// @Router /api/party/{id}/kick/{member} [post]
func (h *Handlers) handlePartyKick(c *gin.Context) {
	id, party, member, ok := h.partyMember(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.parties.Kick(ctx, id, party.ID, member); err != nil {
		respondErr(c, err)
		return
	}
	h.logger.Info("[HTTP] %s kicked %s from %s", id, member, party.ID)
	h.refreshParty(ctx, id)
	RespondSuccess(c, http.StatusOK, gin.H{"partyId": party.ID, "member": member}, "member kicked")
}

// @Summary Promote a party member to captain
// @Tags Party
// @Produce json
// @Param id path string true "Account id"
// @Param member path string true "Member account id"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account, no party or not a member"
// @Router /api/party/{id}/promote/{member} [post]
func (h *Handlers) handlePartyPromote(c *gin.Context) {
	id, party, member, ok := h.partyMember(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.parties.Promote(ctx, id, party.ID, member); err != nil {
		respondErr(c, err)
		return
	}
	h.refreshParty(ctx, id)
	RespondSuccess(c, http.StatusOK, gin.H{"partyId": party.ID, "captain": member}, "member promoted")
}

// @Summary Invite a friend into the party
// @Tags Party
// @Produce json
// @Param id path string true "Account id"
// @Param friend path string true "Friend account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account or no party"
// @Router /api/party/{id}/invite/{friend} [post]
func (h *Handlers) handlePartyInvite(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	party, ok := h.currentParty(c, id)
	if !ok {
		return
	}
	friend := c.Param("friend")
	if err := h.parties.Invite(c.Request.Context(), id, party.ID, friend); err != nil {
		respondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"partyId": party.ID, "friend": friend}, "invite sent")
}

// @Summary Set the party privacy
// @Description Applies the public or private preset to the party meta. The account must be the party captain.
// @Tags Party
// @Accept json
// @Produce json
// @Param id path string true "Account id"
// @Param body body PrivacyRequest true "public or private"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account or no party"
// @Router /api/party/{id}/privacy [put]
func (h *Handlers) handlePartyPrivacy(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	var req PrivacyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "privacy is required", nil)
		return
	}
	meta, err := epic.PrivacyMeta(req.Privacy)
	if err != nil {
		respondErr(c, err)
		return
	}
	party, ok := h.currentParty(c, id)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.parties.PatchParty(ctx, id, party.ID, party.Revision, meta, nil); err != nil {
		respondErr(c, err)
		return
	}
	h.refreshParty(ctx, id)
	RespondSuccess(c, http.StatusOK, gin.H{"partyId": party.ID, "privacy": req.Privacy}, "privacy updated")
}

// @Summary Read one friend
// @Tags Friends
// @Produce json
// @Param id path string true "Account id"
// @Param friend path string true "Friend account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account"
// @Router /api/friends/{id}/{friend} [get]
func (h *Handlers) handleFriendGet(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	friend, err := h.friends.Get(c.Request.Context(), id, c.Param("friend"))
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, friend, "")
}

// @Summary Send or accept a friend request
// @Tags Friends
// @Produce json
// @Param id path string true "Account id"
// @Param friend path string true "Friend account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account"
// @Router /api/friends/{id}/{friend} [put]
func (h *Handlers) handleFriendAdd(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	friend := c.Param("friend")
	ctx := c.Request.Context()
	if err := h.friends.Add(ctx, id, friend); err != nil {
		respondErr(c, err)
		return
	}
	h.refreshFriends(ctx, id)
	RespondSuccess(c, http.StatusOK, gin.H{"friend": friend}, "friend request sent")
}

// @Summary Remove a friend or decline a request
// @Tags Friends
// @Produce json
// @Param id path string true "Account id"
// @Param friend path string true "Friend account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account"
// @Router /api/friends/{id}/{friend} [delete]
func (h *Handlers) handleFriendRemove(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	friend := c.Param("friend")
	ctx := c.Request.Context()
	if err := h.friends.Remove(ctx, id, friend); err != nil {
		respondErr(c, err)
		return
	}
	h.refreshFriends(ctx, id)
	RespondSuccess(c, http.StatusOK, gin.H{"friend": friend}, "friend removed")
}

// @Summary Accept every incoming friend request
// @Tags Friends
// @Produce json
// @Param id path string true "Account id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse "unknown account"
// @Router /api/friends/{id}/accept-all [post]
func (h *Handlers) handleFriendsAcceptAll(c *gin.Context) {
	id, ok := h.knownAccount(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	accepted, err := h.friends.AcceptIncoming(ctx, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	h.refreshFriends(ctx, id)
	RespondSuccess(c, http.StatusOK, gin.H{"accepted": accepted}, "")
}

func (h *Handlers) refreshFriends(ctx context.Context, accountID string) {
	if err := h.mirror.RefreshFriends(ctx, accountID); err != nil {
		h.logger.Warn("[HTTP] refreshing friends of %s failed: %v", accountID, err)
	}
}
