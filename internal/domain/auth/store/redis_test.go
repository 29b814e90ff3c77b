package store

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"partybot-server-go/internal/domain/auth/model"
)

func newRedisStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := NewRedis(Config{
		Redis: &RedisConfig{
			Addr: mr.Addr(),
		},
	})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})
	return store, mr
}

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	token := model.Token{
		AccountID:   "redis-acc",
		AccessToken: "eg1~token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	if err := store.Save(ctx, token); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	if !mr.Exists("partybot:token:redis-acc") {
		t.Fatalf("expected key under default prefix, have %v", mr.Keys())
	}
	if ttl := mr.TTL("partybot:token:redis-acc"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	got, err := store.Get(ctx, token.AccountID, "")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.AccessToken != token.AccessToken {
		t.Fatalf("unexpected token: %+v", got)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.Driver != DriverRedis || stats.Total != 1 || stats.Active != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := store.Remove(ctx, token.AccountID, ""); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := store.Get(ctx, token.AccountID, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected missing token after removal, got %v", err)
	}
}

func TestRedisStoreExpiresWithToken(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	token := model.Token{
		AccountID:   "redis-exp",
		Scope:       "launcher",
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Minute),
	}
	if err := store.Save(ctx, token); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, token.AccountID, token.Scope); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
}

func TestRedisStoreRejectsExpiredSave(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	err := store.Save(ctx, model.Token{AccountID: "old", AccessToken: "x", ExpiresAt: time.Now().Add(-time.Second)})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expired token must not be stored: %v", mr.Keys())
	}
}

func TestRedisStoreRemoveAccount(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	exp := time.Now().Add(time.Hour)
	for _, tok := range []model.Token{
		{AccountID: "a", AccessToken: "1", ExpiresAt: exp},
		{AccountID: "a", Scope: "launcher", AccessToken: "2", ExpiresAt: exp},
		{AccountID: "b", AccessToken: "3", ExpiresAt: exp},
	} {
		if err := store.Save(ctx, tok); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}

	if err := store.RemoveAccount(ctx, "a"); err != nil {
		t.Fatalf("RemoveAccount error: %v", err)
	}
	keys := mr.Keys()
	if len(keys) != 1 || keys[0] != "partybot:token:b" {
		t.Fatalf("unexpected remaining keys: %v", keys)
	}
}
