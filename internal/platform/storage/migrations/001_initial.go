package migrations

import (
	"gorm.io/gorm"
)

// Migration001Initial creates the account and automation settings tables.
type Migration001Initial struct{}

func (m *Migration001Initial) Version() string {
	return "001_initial"
}

func (m *Migration001Initial) Description() string {
	return "Create accounts and automation_settings tables"
}

func (m *Migration001Initial) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			account_id VARCHAR(64) PRIMARY KEY,
			display_name VARCHAR(255) NOT NULL,
			device_id VARCHAR(255) NOT NULL,
			secret VARCHAR(255) NOT NULL,
			needs_action BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	return db.Exec(`
		CREATE TABLE IF NOT EXISTS automation_settings (
			account_id VARCHAR(64) PRIMARY KEY,
			settings JSON NOT NULL,
			updated_at DATETIME
		)
	`).Error
}

func (m *Migration001Initial) Down(db *gorm.DB) error {
	if err := db.Exec(`DROP TABLE IF EXISTS automation_settings`).Error; err != nil {
		return err
	}
	return db.Exec(`DROP TABLE IF EXISTS accounts`).Error
}
