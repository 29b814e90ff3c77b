package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partybot-server-go/internal/domain/account"
	"partybot-server-go/internal/domain/auth/model"
	"partybot-server-go/internal/domain/auth/store"
	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/platform/logging"
)

type fakeExchanger struct {
	calls   atomic.Int32
	delay   time.Duration
	err     error
	counter atomic.Int32
}

func (f *fakeExchanger) ExchangeDeviceAuth(ctx context.Context, accountID, deviceID, secret string) (*epic.TokenResponse, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	n := f.counter.Add(1)
	return &epic.TokenResponse{
		AccessToken: "token-" + accountID + "-" + string(rune('0'+n)),
		ExpiresIn:   7200,
		AccountID:   accountID,
	}, nil
}

type fixture struct {
	cache     *TokenCache
	exchanger *fakeExchanger
	registry  *account.Registry
	bus       *eventbus.Bus
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	ctx := context.Background()

	bus := eventbus.NewAppBus()
	t.Cleanup(bus.Close)

	registry := account.NewRegistry(account.NewMemoryRepository(), bus, logging.Nop())
	acc, err := account.New("acc1", "Player One", "dev1", "secret1")
	require.NoError(t, err)
	require.NoError(t, registry.Add(ctx, acc))

	exchanger := &fakeExchanger{}
	cache, err := NewTokenCache(Options{
		Accounts:  registry,
		Exchanger: exchanger,
		Store:     st,
		Notifier:  NewNotifier(bus, time.Minute, logging.Nop()),
		Logger:    logging.Nop(),
	})
	require.NoError(t, err)

	return &fixture{cache: cache, exchanger: exchanger, registry: registry, bus: bus}
}

func TestTokenSingleFlight(t *testing.T) {
	f := newFixture(t, nil)
	f.exchanger.delay = 50 * time.Millisecond

	const callers = 20
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := f.cache.Token(context.Background(), "acc1", false)
			assert.NoError(t, err)
			results[i] = token
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.exchanger.calls.Load())
	for _, token := range results {
		assert.Equal(t, results[0], token)
	}
	assert.NotEmpty(t, results[0])
}

func TestTokenFastPathAndForce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.cache.Token(ctx, "acc1", false)
	require.NoError(t, err)
	again, err := f.cache.Token(ctx, "acc1", false)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, int32(1), f.exchanger.calls.Load())

	forced, err := f.cache.Token(ctx, "acc1", true)
	require.NoError(t, err)
	assert.NotEqual(t, first, forced)
	assert.Equal(t, int32(2), f.exchanger.calls.Load())
}

func TestTokenExpiryTriggersRefresh(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now()
	f.cache.now = func() time.Time { return now }

	_, err := f.cache.Token(ctx, "acc1", false)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = f.cache.Token(ctx, "acc1", false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.exchanger.calls.Load())
}

func TestTokenRestoredFromStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	t.Cleanup(func() { _ = st.Close(ctx) })

	require.NoError(t, st.Save(ctx, model.Token{
		AccountID:   "acc1",
		AccessToken: "persisted",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	f := newFixture(t, st)
	token, err := f.cache.Token(ctx, "acc1", false)
	require.NoError(t, err)
	assert.Equal(t, "persisted", token)
	assert.Equal(t, int32(0), f.exchanger.calls.Load())

	forced, err := f.cache.Token(ctx, "acc1", true)
	require.NoError(t, err)
	assert.NotEqual(t, "persisted", forced)

	saved, err := st.Get(ctx, "acc1", "")
	require.NoError(t, err)
	assert.Equal(t, forced, saved.AccessToken)
}

func TestStoreStatsReportsPersistedTokens(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	t.Cleanup(func() { _ = st.Close(ctx) })

	f := newFixture(t, st)
	_, err := f.cache.Token(ctx, "acc1", false)
	require.NoError(t, err)

	stats, err := f.cache.StoreStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{Driver: store.DriverMemory, Total: 1, Active: 1}, stats)
	assert.Equal(t, int64(1), f.cache.Exchanges())

	empty, err := newFixture(t, nil).cache.StoreStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{}, empty)
}

func TestInvalidCredentialsRemovesAccountAndNotifiesOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.exchanger.err = &epic.APIError{ErrorCode: epic.ErrCodeInvalidCredentials}

	var removed, notes atomic.Int32
	eventbus.On(f.bus, eventbus.EventAccountRemoved, func(eventbus.AccountEvent) { removed.Add(1) })
	eventbus.On(f.bus, eventbus.EventNotification, func(n eventbus.Notification) {
		assert.Equal(t, epic.ErrCodeInvalidCredentials, n.Code)
		notes.Add(1)
	})

	_, err := f.cache.Token(context.Background(), "acc1", false)
	assert.True(t, epic.IsErrorCode(err, epic.ErrCodeInvalidCredentials))
	assert.False(t, f.registry.Has("acc1"))
	assert.Equal(t, int32(1), removed.Load())
	assert.Equal(t, int32(1), notes.Load())

	// The account is gone now, but re-registering and failing again inside
	// the cooldown must stay silent.
	acc, _ := account.New("acc1", "Player One", "dev1", "secret1")
	require.NoError(t, f.registry.Add(context.Background(), acc))
	_, err = f.cache.Token(context.Background(), "acc1", false)
	assert.Error(t, err)
	assert.Equal(t, int32(1), notes.Load())
	assert.Equal(t, int32(2), f.exchanger.calls.Load())
}

func TestCorrectiveActionKeepsAccount(t *testing.T) {
	f := newFixture(t, nil)
	f.exchanger.err = &epic.APIError{ErrorCode: epic.ErrCodeCorrectiveAction}

	_, err := f.cache.Token(context.Background(), "acc1", false)
	assert.True(t, epic.IsErrorCode(err, epic.ErrCodeCorrectiveAction))

	acc, ok := f.registry.Get("acc1")
	require.True(t, ok)
	assert.True(t, acc.NeedsAction)
}

func TestOtherErrorsPropagate(t *testing.T) {
	f := newFixture(t, nil)
	f.exchanger.err = &epic.StatusError{HTTPStatus: 503}

	_, err := f.cache.Token(context.Background(), "acc1", false)
	var statusErr *epic.StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.True(t, f.registry.Has("acc1"))
}

func TestUnknownAccount(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.cache.Token(context.Background(), "ghost", false)
	assert.ErrorIs(t, err, account.ErrNotFound)
	assert.Equal(t, int32(0), f.exchanger.calls.Load())
}

func TestExpiryFromJWT(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	got, ok := expiryFromJWT("eg1~" + signed)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = expiryFromJWT("opaque-token")
	assert.False(t, ok)
}

func TestExpiryFallsBackToJWT(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	exp, ok := f.cache.expiry(&epic.TokenResponse{AccessToken: signed}, now)
	require.True(t, ok)
	assert.WithinDuration(t, now.Add(time.Hour-DefaultExpiryMargin), exp, 2*time.Second)

	_, ok = f.cache.expiry(&epic.TokenResponse{AccessToken: "opaque"}, now)
	assert.False(t, ok)
}

func TestNotifierCooldown(t *testing.T) {
	bus := eventbus.NewAppBus()
	defer bus.Close()
	var published atomic.Int32
	eventbus.On(bus, eventbus.EventNotification, func(eventbus.Notification) { published.Add(1) })

	n := NewNotifier(bus, 10*time.Second, nil)
	now := time.Now()
	n.now = func() time.Time { return now }

	note := eventbus.Notification{AccountID: "a", Code: "c"}
	assert.True(t, n.Notify(note))
	assert.False(t, n.Notify(note))
	assert.True(t, n.Notify(eventbus.Notification{AccountID: "a", Code: "other"}))
	assert.True(t, n.Notify(eventbus.Notification{AccountID: "b", Code: "c"}))

	now = now.Add(11 * time.Second)
	assert.True(t, n.Notify(note))
	assert.Equal(t, int32(4), published.Load())
}
