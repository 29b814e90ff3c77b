package infrastructure

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"partybot-server-go/internal/domain/eventbus/repository"
	"partybot-server-go/internal/platform/errors"
	"partybot-server-go/internal/platform/storage"
)

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates the gorm-backed event journal.
func NewEventRepository(db *gorm.DB) repository.EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Store(ctx context.Context, event repository.Event) error {
	data, err := sonic.Marshal(event.Data)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "event.store.marshal", "failed to marshal event data", err)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	record := &storage.EventRecord{
		EventType: event.EventType,
		AccountID: event.AccountID,
		Data:      data,
		CreatedAt: event.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "event.store.create", "failed to store event", err)
	}
	return nil
}

func (r *eventRepository) FindByAccount(ctx context.Context, accountID string, limit int) ([]repository.Event, error) {
	var records []storage.EventRecord
	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.find.account", "failed to find events by account", err)
	}
	return convertRecords(records)
}

func (r *eventRepository) FindByEventType(ctx context.Context, eventType string, limit int) ([]repository.Event, error) {
	var records []storage.EventRecord
	query := r.db.WithContext(ctx).
		Where("event_type = ?", eventType).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.find.type", "failed to find events by type", err)
	}
	return convertRecords(records)
}

func (r *eventRepository) DeleteOldEvents(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&storage.EventRecord{})
	if res.Error != nil {
		return 0, errors.Wrap(errors.KindStorage, "event.delete.old", "failed to delete old events", res.Error)
	}
	return res.RowsAffected, nil
}

func convertRecords(records []storage.EventRecord) ([]repository.Event, error) {
	events := make([]repository.Event, len(records))
	for i, rec := range records {
		var data any
		if len(rec.Data) > 0 {
			if err := sonic.Unmarshal(rec.Data, &data); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "event.convert.unmarshal", "failed to unmarshal event data", err)
			}
		}
		events[i] = repository.Event{
			ID:        rec.ID,
			EventType: rec.EventType,
			AccountID: rec.AccountID,
			Data:      data,
			CreatedAt: rec.CreatedAt,
		}
	}
	return events, nil
}
