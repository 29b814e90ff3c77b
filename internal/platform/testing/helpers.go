// Package testing holds fixtures shared by package tests: a default config,
// a logger writing into a buffer and a migrated in-memory database.
package testing

import (
	"bytes"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"partybot-server-go/internal/platform/config"
	"partybot-server-go/internal/platform/logging"
	"partybot-server-go/internal/platform/storage"
)

// SetupTestConfig returns the default config pointed at an in-memory
// database and a per-test log directory.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Log.Level = "DEBUG"
	cfg.Log.Dir = filepath.Join(t.TempDir(), "logs")
	cfg.Log.File = "test.log"
	cfg.Storage.DSN = ":memory:"
	cfg.Automation.RestoreOnBoot = false
	return cfg
}

// SetupTestLogger returns a provider whose console output lands in the
// returned buffer. It is closed when the test ends.
func SetupTestLogger(t *testing.T) (*logging.Provider, *bytes.Buffer) {
	t.Helper()

	cfg := SetupTestConfig(t)
	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
		Console:  &buf,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, &buf
}

// OpenTestDB opens a migrated in-memory database closed at test end.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := storage.Open(storage.Config{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close(db) })
	return db
}
