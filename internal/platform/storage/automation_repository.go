package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"partybot-server-go/internal/domain/automation"
	"partybot-server-go/internal/platform/errors"
)

type automationRepository struct {
	db *gorm.DB
}

// NewAutomationRepository creates the SQLite automation settings repository.
func NewAutomationRepository(db *gorm.DB) automation.SettingsRepository {
	return &automationRepository{db: db}
}

func (r *automationRepository) Save(ctx context.Context, accountID string, settings automation.Settings) error {
	data, err := sonic.Marshal(settings)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "automation.save.marshal", "failed to marshal settings", err)
	}
	record := &AutomationRecord{AccountID: accountID, Settings: data, UpdatedAt: time.Now()}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"settings", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, "automation.save", "failed to save settings", err)
	}
	return nil
}

func (r *automationRepository) Delete(ctx context.Context, accountID string) error {
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&AutomationRecord{}).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "automation.delete", "failed to delete settings", err)
	}
	return nil
}

func (r *automationRepository) List(ctx context.Context) (map[string]automation.Settings, error) {
	var records []AutomationRecord
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "automation.list", "failed to list settings", err)
	}
	out := make(map[string]automation.Settings, len(records))
	for _, rec := range records {
		var s automation.Settings
		if err := sonic.Unmarshal(rec.Settings, &s); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "automation.list.unmarshal",
				"corrupt settings for "+rec.AccountID, err)
		}
		out[rec.AccountID] = s
	}
	return out, nil
}
