package repository

import (
	"context"
	"time"
)

// EventRepository persists the application events worth keeping as history.
type EventRepository interface {
	Store(ctx context.Context, event Event) error

	// FindByAccount returns the newest events for an account first.
	FindByAccount(ctx context.Context, accountID string, limit int) ([]Event, error)

	FindByEventType(ctx context.Context, eventType string, limit int) ([]Event, error)

	// DeleteOldEvents removes events created before the cutoff.
	DeleteOldEvents(ctx context.Context, before time.Time) (int64, error)
}

// Event is one journaled application event.
type Event struct {
	ID        uint      `json:"id"`
	EventType string    `json:"eventType"`
	AccountID string    `json:"accountId"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
