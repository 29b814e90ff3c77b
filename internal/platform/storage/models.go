package storage

import (
	"time"

	"gorm.io/datatypes"
)

// AccountRecord is the persisted form of account.Account.
type AccountRecord struct {
	AccountID   string `gorm:"primaryKey;size:64"`
	DisplayName string `gorm:"not null"`
	DeviceID    string `gorm:"not null"`
	Secret      string `gorm:"not null"`
	NeedsAction bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (AccountRecord) TableName() string { return "accounts" }

// AutomationRecord stores the automation settings of one account as JSON.
type AutomationRecord struct {
	AccountID string         `gorm:"primaryKey;size:64"`
	Settings  datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

func (AutomationRecord) TableName() string { return "automation_settings" }

// EventRecord is one journaled application event.
type EventRecord struct {
	ID        uint           `gorm:"primaryKey"`
	EventType string         `gorm:"index;not null"`
	AccountID string         `gorm:"index"`
	Data      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index"`
}

func (EventRecord) TableName() string { return "domain_events" }
