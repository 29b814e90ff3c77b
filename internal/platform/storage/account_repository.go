package storage

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"partybot-server-go/internal/domain/account"
	"partybot-server-go/internal/platform/errors"
)

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates the SQLite account repository.
func NewAccountRepository(db *gorm.DB) account.Repository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Save(ctx context.Context, acc *account.Account) error {
	model := toAccountRecord(acc)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "device_id", "secret", "needs_action", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, "account.save", "failed to save account", err)
	}
	return nil
}

func (r *accountRepository) FindByID(ctx context.Context, accountID string) (*account.Account, error) {
	var model AccountRecord
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, account.ErrNotFound
		}
		return nil, errors.Wrap(errors.KindStorage, "account.find_by_id", "failed to find account", err)
	}
	return fromAccountRecord(&model), nil
}

func (r *accountRepository) List(ctx context.Context) ([]*account.Account, error) {
	var models []AccountRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "account.list", "failed to list accounts", err)
	}
	out := make([]*account.Account, len(models))
	for i := range models {
		out[i] = fromAccountRecord(&models[i])
	}
	return out, nil
}

func (r *accountRepository) Delete(ctx context.Context, accountID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&AutomationRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("account_id = ?", accountID).Delete(&AccountRecord{}).Error
	})
	if err != nil {
		return errors.Wrap(errors.KindStorage, "account.delete", "failed to delete account", err)
	}
	return nil
}

func (r *accountRepository) SetNeedsAction(ctx context.Context, accountID string, needsAction bool) error {
	res := r.db.WithContext(ctx).Model(&AccountRecord{}).
		Where("account_id = ?", accountID).
		Update("needs_action", needsAction)
	if res.Error != nil {
		return errors.Wrap(errors.KindStorage, "account.set_needs_action", "failed to update account", res.Error)
	}
	if res.RowsAffected == 0 {
		return account.ErrNotFound
	}
	return nil
}

func toAccountRecord(acc *account.Account) *AccountRecord {
	return &AccountRecord{
		AccountID:   acc.AccountID,
		DisplayName: acc.DisplayName,
		DeviceID:    acc.DeviceID,
		Secret:      acc.Secret,
		NeedsAction: acc.NeedsAction,
		CreatedAt:   acc.CreatedAt,
	}
}

func fromAccountRecord(model *AccountRecord) *account.Account {
	return &account.Account{
		AccountID:   model.AccountID,
		DisplayName: model.DisplayName,
		DeviceID:    model.DeviceID,
		Secret:      model.Secret,
		NeedsAction: model.NeedsAction,
		CreatedAt:   model.CreatedAt,
	}
}
