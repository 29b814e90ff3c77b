package httptransport

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/swaggo/swag"

	"partybot-server-go/internal/domain/account"
	"partybot-server-go/internal/domain/auth/store"
	"partybot-server-go/internal/domain/automation"
	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus/repository"
	"partybot-server-go/internal/domain/mirror"
	"partybot-server-go/internal/domain/stream"
	"partybot-server-go/internal/domain/taxi"
	"partybot-server-go/internal/platform/logging"
	"partybot-server-go/internal/platform/observability"
	_ "partybot-server-go/internal/transport/http/docs"
)

const scalarHTML = `<!DOCTYPE html>
<html lang="en">
	<head>
		<meta charset="utf-8" />
		<title>partybot API Reference</title>
		<meta name="viewport" content="width=device-width, initial-scale=1" />
	</head>
	<body>
		<script
			id="api-reference"
			data-url="/openapi.json"
			data-layout="modern"
			src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"
		></script>
	</body>
</html>`

// Accounts is the account registry behind the accounts routes.
type Accounts interface {
	List() []account.Account
	Get(accountID string) (account.Account, bool)
	Has(accountID string) bool
	Add(ctx context.Context, acc *account.Account) error
	Remove(ctx context.Context, accountID string) (bool, error)
}

// Credentials turns login material into a device credential.
type Credentials interface {
	ExchangeCode(ctx context.Context, code string) (*epic.TokenResponse, error)
	ExchangeDeviceAuth(ctx context.Context, accountID, deviceID, secret string) (*epic.TokenResponse, error)
	CreateDeviceAuth(ctx context.Context, accountID, accessToken string) (*epic.DeviceAuth, error)
}

// Automations drives the automation routes.
type Automations interface {
	Start(ctx context.Context, accountID string, settings automation.Settings) error
	Stop(ctx context.Context, accountID string) error
	Status(accountID string) (automation.Snapshot, bool)
	List() []automation.Snapshot
}

// Mirror serves party and friends snapshots.
type Mirror interface {
	Party(accountID string) *epic.Party
	Friends(accountID string) *mirror.Friends
	RefreshParty(ctx context.Context, accountID string) (*epic.Party, error)
	RefreshFriends(ctx context.Context, accountID string) error
}

// PartyActions performs party mutations on behalf of an account.
type PartyActions interface {
	Kick(ctx context.Context, accountID, partyID, memberID string) error
	Leave(ctx context.Context, accountID, partyID string) error
	Promote(ctx context.Context, accountID, partyID, memberID string) error
	Invite(ctx context.Context, accountID, partyID, friendID string) error
	PatchParty(ctx context.Context, accountID, partyID string, revision int, update map[string]string, deleted []string) error
}

// FriendActions reads and changes an account's friendships.
type FriendActions interface {
	Get(ctx context.Context, accountID, friendID string) (*epic.Friend, error)
	Add(ctx context.Context, accountID, friendID string) error
	Remove(ctx context.Context, accountID, friendID string) error
	AcceptIncoming(ctx context.Context, accountID string) ([]string, error)
}

// Taxis drives the taxi routes.
type Taxis interface {
	Start(ctx context.Context, accountID string, settings taxi.Settings) error
	Stop(ctx context.Context, accountID string) error
	Status(accountID string) (taxi.Snapshot, bool)
	List() []taxi.Snapshot
}

// Tokens reports the health of the token cache.
type Tokens interface {
	StoreStats(ctx context.Context) (store.Stats, error)
	Exchanges() int64
}

// History reads journaled application events.
type History interface {
	FindByAccount(ctx context.Context, accountID string, limit int) ([]repository.Event, error)
}

// StatusSession is the part of a stream session the status routes drive.
type StatusSession interface {
	SetStatus(ctx context.Context, text, mode string) error
	ResetStatus(ctx context.Context) error
	RemovePurpose(purpose string)
}

// Sessions hands out stream sessions for the status routes.
type Sessions interface {
	Acquire(ctx context.Context, accountID, purpose string) (StatusSession, error)
	Get(accountID string) (StatusSession, bool)
	List() []string
}

type registrySessions struct {
	r *stream.Registry
}

// SessionsFrom adapts a stream registry.
func SessionsFrom(r *stream.Registry) Sessions {
	return registrySessions{r: r}
}

func (s registrySessions) Acquire(ctx context.Context, accountID, purpose string) (StatusSession, error) {
	sess, err := s.r.Acquire(ctx, accountID, purpose)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s registrySessions) Get(accountID string) (StatusSession, bool) {
	sess, ok := s.r.Get(accountID)
	if !ok {
		return nil, false
	}
	return sess, true
}

func (s registrySessions) List() []string {
	return s.r.List()
}

// HandlerOptions carries the collaborators behind the API.
type HandlerOptions struct {
	Accounts    Accounts
	Credentials Credentials
	Automations Automations
	Mirror      Mirror
	Sessions    Sessions
	Logger      logging.Logger

	// History is optional; without it the events route is not mounted.
	History History

	// Tokens adds token store figures to the health payload when set.
	Tokens Tokens

	// Parties and Friends mount the mutation routes when set.
	Parties PartyActions
	Friends FriendActions

	// Taxis mounts the taxi routes when set.
	Taxis Taxis

	// Feed serves the live event websocket when set.
	Feed http.HandlerFunc
}

// Handlers serves the control API.
type Handlers struct {
	accounts    Accounts
	credentials Credentials
	automations Automations
	mirror      Mirror
	sessions    Sessions
	history     History
	tokens      Tokens
	parties     PartyActions
	friends     FriendActions
	taxis       Taxis
	feed        http.HandlerFunc
	logger      logging.Logger
}

// NewHandlers checks that the required collaborators are present.
func NewHandlers(opts HandlerOptions) (*Handlers, error) {
	if opts.Accounts == nil || opts.Automations == nil || opts.Mirror == nil || opts.Sessions == nil {
		return nil, errors.New("http handlers require accounts, automations, mirror and sessions")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Handlers{
		accounts:    opts.Accounts,
		credentials: opts.Credentials,
		automations: opts.Automations,
		mirror:      opts.Mirror,
		sessions:    opts.Sessions,
		history:     opts.History,
		tokens:      opts.Tokens,
		parties:     opts.Parties,
		friends:     opts.Friends,
		taxis:       opts.Taxis,
		feed:        opts.Feed,
		logger:      opts.Logger,
	}, nil
}

// Register mounts every route on r.
func (h *Handlers) Register(r *Router) {
	r.Engine.GET("/healthz", h.handleHealth)
	r.Engine.GET("/metrics", gin.WrapH(observability.Handler()))
	r.Engine.GET("/openapi.json", h.handleOpenAPI)
	r.Engine.GET("/docs", h.handleDocs)

	api := r.API
	api.GET("/accounts", h.handleAccountsList)
	api.POST("/accounts", h.handleAccountAdd)
	api.DELETE("/accounts/:id", h.handleAccountRemove)

	api.GET("/automation", h.handleAutomationList)
	api.GET("/automation/:id", h.handleAutomationGet)
	api.PUT("/automation/:id", h.handleAutomationPut)
	api.DELETE("/automation/:id", h.handleAutomationDelete)

	api.GET("/party/:id", h.handlePartyGet)
	api.GET("/friends/:id", h.handleFriendsGet)

	api.PUT("/status/:id", h.handleStatusPut)
	api.DELETE("/status/:id", h.handleStatusDelete)

	if h.parties != nil {
		api.POST("/party/:id/leave", h.handlePartyLeave)
		api.POST("/party/:id/kick/:member", h.handlePartyKick)
		api.POST("/party/:id/promote/:member", h.handlePartyPromote)
		api.POST("/party/:id/invite/:friend", h.handlePartyInvite)
		api.PUT("/party/:id/privacy", h.handlePartyPrivacy)
	}
	if h.friends != nil {
		api.POST("/friends/:id/accept-all", h.handleFriendsAcceptAll)
		api.GET("/friends/:id/:friend", h.handleFriendGet)
		api.PUT("/friends/:id/:friend", h.handleFriendAdd)
		api.DELETE("/friends/:id/:friend", h.handleFriendRemove)
	}
	if h.taxis != nil {
		api.GET("/taxi", h.handleTaxiList)
		api.GET("/taxi/:id", h.handleTaxiGet)
		api.PUT("/taxi/:id", h.handleTaxiPut)
		api.DELETE("/taxi/:id", h.handleTaxiDelete)
	}

	api.GET("/metrics", h.handleMetrics)

	if h.history != nil {
		api.GET("/events/:id", h.handleEventsGet)
	}
	if h.feed != nil {
		api.GET("/feed", gin.WrapF(h.feed))
	}

	h.logger.Info("[HTTP] control API routes registered")
}

// @Summary Service health
// @Tags System
// @Produce json
// @Success 200 {object} object
// @Router /healthz [get]
func (h *Handlers) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":      "ok",
		"accounts":    len(h.accounts.List()),
		"sessions":    len(h.sessions.List()),
		"automations": len(h.automations.List()),
	}
	if h.taxis != nil {
		body["taxis"] = len(h.taxis.List())
	}
	if h.tokens != nil {
		stats, err := h.tokens.StoreStats(c.Request.Context())
		if err != nil {
			h.logger.Warn("token store stats failed: %v", err)
			body["tokens"] = gin.H{"error": err.Error()}
		} else {
			body["tokens"] = gin.H{
				"driver":    stats.Driver,
				"total":     stats.Total,
				"active":    stats.Active,
				"exchanges": h.tokens.Exchanges(),
			}
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handlers) handleOpenAPI(c *gin.Context) {
	doc, err := swag.ReadDoc()
	if err != nil {
		h.logger.Error("[HTTP] reading openapi document failed: %v", err)
		RespondError(c, http.StatusInternalServerError, "failed to generate openapi spec", gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
}

func (h *Handlers) handleDocs(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(scalarHTML))
}

// @Summary In-process counters
// @Tags System
// @Produce json
// @Success 200 {object} APIResponse
// @Router /api/metrics [get]
func (h *Handlers) handleMetrics(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, observability.Counters(), "")
}

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// @Summary Journaled events of an account
// @Tags Events
// @Produce json
// @Param id path string true "Account id"
// @Param limit query int false "Maximum number of events (default 50, at most 500)"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /api/events/{id} [get]
func (h *Handlers) handleEventsGet(c *gin.Context) {
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondError(c, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxEventLimit)
	}
	events, err := h.history.FindByAccount(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, events, "")
}

// knownAccount answers 404 and returns false for unregistered ids.
func (h *Handlers) knownAccount(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !h.accounts.Has(id) {
		RespondError(c, http.StatusNotFound, "unknown account "+id, nil)
		return "", false
	}
	return id, true
}
