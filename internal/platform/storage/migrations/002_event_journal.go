package migrations

import "gorm.io/gorm"

// Migration002EventJournal adds the domain_events journal.
type Migration002EventJournal struct{}

func (m *Migration002EventJournal) Version() string { return "002_event_journal" }

func (m *Migration002EventJournal) Description() string {
	return "Create domain_events journal table"
}

func (m *Migration002EventJournal) Up(db *gorm.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS domain_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type VARCHAR(255) NOT NULL,
			account_id VARCHAR(64),
			data JSON NOT NULL,
			created_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_event_type ON domain_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_account_id ON domain_events(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_created_at ON domain_events(created_at)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration002EventJournal) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS domain_events`).Error
}
