package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"partybot-server-go/internal/domain/account"
	domainauth "partybot-server-go/internal/domain/auth"
	authstore "partybot-server-go/internal/domain/auth/store"
	"partybot-server-go/internal/domain/automation"
	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus"
	eventinfra "partybot-server-go/internal/domain/eventbus/infrastructure"
	"partybot-server-go/internal/domain/eventbus/repository"
	"partybot-server-go/internal/domain/mirror"
	"partybot-server-go/internal/domain/rewards"
	"partybot-server-go/internal/domain/stream"
	"partybot-server-go/internal/domain/taxi"
	platformconfig "partybot-server-go/internal/platform/config"
	platformerrors "partybot-server-go/internal/platform/errors"
	platformlogging "partybot-server-go/internal/platform/logging"
	platformobservability "partybot-server-go/internal/platform/observability"
	platformstorage "partybot-server-go/internal/platform/storage"
	httptransport "partybot-server-go/internal/transport/http"
	"partybot-server-go/internal/transport/presence"
	"partybot-server-go/internal/transport/ws"
)

const (
	tag             = "bootstrap"
	shutdownTimeout = 15 * time.Second
	sweepInterval   = time.Hour
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	// loader overrides the default config loader; tests pin a file with it.
	loader *platformconfig.Loader

	config                *platformconfig.Config
	configPath            string
	logProvider           *platformlogging.Provider
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	db                    *gorm.DB

	appBus    *eventbus.Bus
	publisher *eventbus.AsyncPublisher

	accounts *account.Registry
	client   *epic.Client
	tokens   *domainauth.TokenCache
	mirror   *mirror.Mirror
	streams  *stream.Registry
	rewards  *rewards.Service
	engine   *automation.Engine
	taxis    *taxi.Manager

	eventRepo repository.EventRepository
	journal   *eventinfra.Journal
	feed      *ws.Hub
}

// Run starts the service, blocks until SIGINT/SIGTERM or ctx ends, then shuts
// everything down in reverse start order.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close(context.Background())
		return err
	}

	logger := state.logProvider
	if state.config == nil || logger == nil || state.engine == nil {
		state.close(context.Background())
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger/engine not initialised",
		)
	}

	logBootstrapGraph(steps, logger)
	defer state.close(context.Background())

	state.wire()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	return waitForShutdown(signalCtx, cancel, logger, group)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Provider) {
	if logger == nil {
		return
	}
	logger.InfoTag(tag, "init graph (%d steps)", len(steps))
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag(tag, "  %s: %s", step.ID, step.Title)
			continue
		}
		logger.InfoTag(tag, "  %s: %s (after %s)", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:open-database",
			Title:     "Open database and run migrations",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   openDatabaseStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Initialise application event bus",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "accounts:load-registry",
			Title:     "Load account registry",
			DependsOn: []string{"storage:open-database", "events:init-bus"},
			Kind:      platformerrors.KindStorage,
			Execute:   loadAccountsStep,
		},
		{
			ID:        "epic:init-client",
			Title:     "Initialise upstream REST client",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEpicClientStep,
		},
		{
			ID:        "auth:init-token-cache",
			Title:     "Initialise token cache",
			DependsOn: []string{"accounts:load-registry", "epic:init-client", "events:init-bus"},
			Kind:      platformerrors.KindAuth,
			Execute:   initTokenCacheStep,
		},
		{
			ID:        "mirror:init",
			Title:     "Initialise party and friends mirror",
			DependsOn: []string{"accounts:load-registry", "epic:init-client"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initMirrorStep,
		},
		{
			ID:        "stream:init-registry",
			Title:     "Initialise stream registry",
			DependsOn: []string{"auth:init-token-cache", "mirror:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initStreamRegistryStep,
		},
		{
			ID:        "automation:init-engine",
			Title:     "Initialise automation engine",
			DependsOn: []string{"stream:init-registry", "storage:open-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initAutomationStep,
		},
		{
			ID:        "taxi:init-manager",
			Title:     "Initialise taxi manager",
			DependsOn: []string{"stream:init-registry"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initTaxiStep,
		},
		{
			ID:        "events:init-journal",
			Title:     "Initialise event journal",
			DependsOn: []string{"storage:open-database", "events:init-bus"},
			Kind:      platformerrors.KindStorage,
			Execute:   initJournalStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := state.loader
	if loader == nil {
		loader = platformconfig.NewLoader()
	}
	res, err := loader.Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load config", err)
	}
	state.config = res.Config
	state.configPath = res.Path
	if state.configPath == "" {
		state.configPath = "defaults"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logProvider, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logProvider = logProvider
	state.slogger = logProvider.Slog()
	logProvider.InfoTag(tag, "logging ready [%s] config from %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logProvider == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func openDatabaseStep(_ context.Context, state *appState) error {
	db, err := platformstorage.Open(platformstorage.Config{DSN: state.config.Storage.DSN})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:open-database", "failed to open database", err)
	}
	state.db = db
	state.logProvider.InfoTag(platformlogging.TagStorage, "database ready at %s", state.config.Storage.DSN)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	state.appBus = eventbus.NewAppBus()
	state.publisher = eventbus.NewAsyncPublisher(state.appBus, state.config.Events.Workers, state.config.Events.QueueSize)
	return nil
}

func loadAccountsStep(ctx context.Context, state *appState) error {
	logger := platformlogging.Tagged(state.logProvider, "accounts")
	registry := account.NewRegistry(platformstorage.NewAccountRepository(state.db), state.publisher, logger)
	if err := registry.Load(ctx); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "accounts:load-registry", "failed to load accounts", err)
	}
	state.accounts = registry
	state.logProvider.InfoTag(tag, "%d account(s) registered", len(registry.List()))
	return nil
}

func initEpicClientStep(_ context.Context, state *appState) error {
	state.client = epic.NewClient(epic.ConfigFrom(state.config), platformlogging.Tagged(state.logProvider, platformlogging.TagEpic))
	return nil
}

func initTokenCacheStep(_ context.Context, state *appState) error {
	store, err := authstore.New(authstore.ConfigFrom(state.config.Auth.Store))
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindAuth, "auth:init-token-cache", "failed to create token store", err)
	}

	logger := platformlogging.Tagged(state.logProvider, platformlogging.TagAuth)
	tokens, err := domainauth.NewTokenCache(domainauth.Options{
		Accounts:  state.accounts,
		Exchanger: state.client.OAuth,
		Store:     store,
		Notifier:  domainauth.NewNotifier(state.publisher, state.config.Auth.NotifyCooldown, logger),
		Logger:    logger,
	})
	if err != nil {
		_ = store.Close(context.Background())
		return platformerrors.Wrap(platformerrors.KindAuth, "auth:init-token-cache", "failed to create token cache", err)
	}
	state.tokens = tokens
	state.client.SetTokenSource(tokens)
	state.logProvider.InfoTag(platformlogging.TagAuth, "token cache ready (%s store)", state.config.Auth.Store.Type)
	return nil
}

func initMirrorStep(_ context.Context, state *appState) error {
	state.mirror = mirror.New(
		state.client.Party,
		state.client.Friends,
		state.accounts,
		platformlogging.Tagged(state.logProvider, platformlogging.TagMirror),
	)
	return nil
}

func initStreamRegistryStep(_ context.Context, state *appState) error {
	logger := platformlogging.Tagged(state.logProvider, platformlogging.TagStream)
	state.streams = stream.NewRegistry(
		stream.ConfigFrom(state.config.Stream),
		presence.NewDialer(logger),
		state.tokens,
		state.mirror,
		logger,
	)
	return nil
}

func initAutomationStep(_ context.Context, state *appState) error {
	state.rewards = rewards.New(state.client.Profile, platformlogging.Tagged(state.logProvider, platformlogging.TagRewards))

	engine, err := automation.NewEngine(automation.Options{
		Accounts:    state.accounts,
		Streams:     automation.StreamsFrom(state.streams),
		Matchmaking: state.client.Matchmaking,
		Parties:     state.client.Party,
		Friends:     state.client.Friends,
		Rewards:     state.rewards,
		Mirror:      state.mirror,
		Events:      state.publisher,
		Logger:      platformlogging.Tagged(state.logProvider, platformlogging.TagAutomation),
		Timings:     automation.TimingsFrom(state.config.Automation),
		Settings:    platformstorage.NewAutomationRepository(state.db),
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "automation:init-engine", "failed to create automation engine", err)
	}
	state.engine = engine
	return nil
}

func initTaxiStep(_ context.Context, state *appState) error {
	opts := taxi.OptionsFrom(state.config.Taxi)
	opts.Accounts = state.accounts
	opts.Streams = taxi.StreamsFrom(state.streams)
	opts.Parties = state.client.Party
	opts.Friends = state.client.Friends
	opts.Mirror = state.mirror
	opts.Events = state.publisher
	opts.Logger = platformlogging.Tagged(state.logProvider, platformlogging.TagTaxi)

	taxis, err := taxi.NewManager(opts)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "taxi:init-manager", "failed to create taxi manager", err)
	}
	state.taxis = taxis
	return nil
}

func initJournalStep(_ context.Context, state *appState) error {
	if !state.config.Events.Journal {
		state.logProvider.InfoTag(tag, "event journal disabled")
		return nil
	}
	state.eventRepo = eventinfra.NewEventRepository(state.db)
	state.journal = eventinfra.NewJournal(state.eventRepo, platformlogging.Tagged(state.logProvider, "journal"))
	return nil
}

// wire connects the components through the application bus and starts its
// publisher.
func (s *appState) wire() {
	if s.journal != nil {
		s.journal.Attach(s.appBus)
	}
	s.feed = ws.NewHub(platformlogging.Tagged(s.logProvider, "feed"))
	s.feed.Attach(s.appBus)
	s.engine.Watch(s.appBus)
	s.taxis.Watch(s.appBus)
	eventbus.On(s.appBus, eventbus.EventAccountRemoved, func(ev eventbus.AccountEvent) {
		s.tokens.Forget(context.Background(), ev.AccountID)
		s.mirror.Forget(ev.AccountID)
	})
	eventbus.On(s.appBus, eventbus.EventNotification, func(ev eventbus.Notification) {
		s.logProvider.WarnTag(platformlogging.TagAuth, "[%s] %s", ev.AccountID, ev.Message)
	})
	s.publisher.Start()
}

// close releases whatever the init steps created. Safe on a partial state.
func (s *appState) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	logger := s.logProvider
	warn := func(what string, err error) {
		if err != nil && logger != nil {
			logger.WarnTag(tag, "%s did not close cleanly: %v", what, err)
		}
	}

	if s.engine != nil {
		warn("automation engine", s.engine.Close(ctx))
	}
	if s.taxis != nil {
		warn("taxi manager", s.taxis.Close(ctx))
	}
	if s.streams != nil {
		warn("stream registry", s.streams.Close(ctx))
	}
	if s.publisher != nil {
		s.publisher.Stop()
	}
	if s.feed != nil {
		s.feed.Detach()
		s.feed.CloseAll(ws.ErrSessionShutdown)
	}
	if s.journal != nil {
		s.journal.Detach()
	}
	if s.appBus != nil {
		s.appBus.Close()
	}
	if s.tokens != nil {
		warn("token cache", s.tokens.Close(ctx))
	}
	if s.db != nil {
		warn("database", platformstorage.Close(s.db))
	}
	if s.observabilityShutdown != nil {
		warn("observability", s.observabilityShutdown(ctx))
	}
	if logger != nil {
		logger.InfoTag(tag, "shutdown complete")
		_ = logger.Close()
	}
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	if _, err := startHTTPServer(state, g, groupCtx); err != nil {
		return fmt.Errorf("starting http server: %w", err)
	}

	if state.config.Automation.RestoreOnBoot {
		g.Go(func() error {
			if err := state.engine.Restore(groupCtx); err != nil {
				state.logProvider.ErrorTag(platformlogging.TagAutomation, "restoring automations failed: %v", err)
			}
			return nil
		})
	}

	if state.eventRepo != nil && state.config.Events.Retention > 0 {
		g.Go(func() error {
			sweepEvents(groupCtx, state.eventRepo, state.config.Events.Retention, state.logProvider)
			return nil
		})
	}
	return nil
}

// sweepEvents deletes journaled events past retention, once at start and
// then every sweepInterval, until ctx ends.
func sweepEvents(ctx context.Context, repo repository.EventRepository, retention time.Duration, logger platformlogging.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		n, err := repo.DeleteOldEvents(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("sweeping old events failed: %v", err)
		case n > 0:
			logger.Info("swept %d journaled event(s) older than %s", n, retention)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func buildHTTPHandler(ctx context.Context, state *appState) (http.Handler, error) {
	router := httptransport.Build(httptransport.Options{
		Logger:      platformlogging.Tagged(state.logProvider, platformlogging.TagHTTP),
		Debug:       strings.EqualFold(state.config.Log.Level, "debug"),
		CORSOrigins: state.config.Server.CORSOrigins,
	})

	opts := httptransport.HandlerOptions{
		Accounts:    state.accounts,
		Credentials: state.client.OAuth,
		Automations: state.engine,
		Mirror:      state.mirror,
		Sessions:    httptransport.SessionsFrom(state.streams),
		Logger:      platformlogging.Tagged(state.logProvider, platformlogging.TagHTTP),
		Tokens:      state.tokens,
		Parties:     state.client.Party,
		Friends:     state.client.Friends,
		Taxis:       state.taxis,
	}
	if state.eventRepo != nil {
		opts.History = state.eventRepo
	}
	if state.feed != nil {
		feed := ws.NewRouter(state.feed, platformlogging.Tagged(state.logProvider, "feed"), ws.RouterOptions{
			Origins: state.config.Server.CORSOrigins,
			Known:   state.accounts.Has,
			Context: ctx,
		})
		opts.Feed = feed.Handle
	}
	handlers, err := httptransport.NewHandlers(opts)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindBootstrap, "http:init-handlers", "failed to create http handlers", err)
	}
	handlers.Register(router)

	router.Engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, httptransport.APIResponse{
			Success: false,
			Data:    gin.H{},
			Message: "not found",
			Code:    http.StatusNotFound,
		})
	})
	return router.Engine, nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	handler, err := buildHTTPHandler(groupCtx, state)
	if err != nil {
		return nil, err
	}

	logger := state.logProvider
	addr := net.JoinHostPort(state.config.Server.IP, strconv.Itoa(state.config.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag(platformlogging.TagHTTP, "control API listening on http://%s", addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag(platformlogging.TagHTTP, "http server shutdown failed: %v", err)
			} else {
				logger.InfoTag(platformlogging.TagHTTP, "http server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag(platformlogging.TagHTTP, "http server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Provider,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag(tag, "shutting down: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag(tag, "service stopped with error: %v", err)
			return err
		}
		logger.InfoTag(tag, "all services stopped")
	case <-time.After(shutdownTimeout):
		logger.ErrorTag(tag, "services did not stop within %s", shutdownTimeout)
		return errors.New("shutdown timed out")
	}
	return nil
}
