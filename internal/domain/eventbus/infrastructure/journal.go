package infrastructure

import (
	"context"
	"time"

	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/domain/eventbus/repository"
	"partybot-server-go/internal/platform/logging"
)

// Journal copies selected application bus events into an EventRepository so
// the API can show an account's automation history.
type Journal struct {
	repo    repository.EventRepository
	logger  logging.Logger
	timeout time.Duration
	unsubs  []func()
}

func NewJournal(repo repository.EventRepository, logger logging.Logger) *Journal {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Journal{repo: repo, logger: logger, timeout: 5 * time.Second}
}

// Attach subscribes the journal to bus. Call Detach to stop recording.
func (j *Journal) Attach(bus *eventbus.Bus) {
	j.unsubs = append(j.unsubs,
		eventbus.On(bus, eventbus.EventAutomationAction, func(ev eventbus.AutomationActionEvent) {
			j.store(eventbus.EventAutomationAction, ev.AccountID, ev)
		}),
		eventbus.On(bus, eventbus.EventAutomationStatus, func(ev eventbus.AutomationStatusEvent) {
			j.store(eventbus.EventAutomationStatus, ev.AccountID, ev)
		}),
		eventbus.On(bus, eventbus.EventNotification, func(ev eventbus.Notification) {
			j.store(eventbus.EventNotification, ev.AccountID, ev)
		}),
		eventbus.On(bus, eventbus.EventAccountRemoved, func(ev eventbus.AccountEvent) {
			j.store(eventbus.EventAccountRemoved, ev.AccountID, ev)
		}),
	)
}

func (j *Journal) Detach() {
	for _, unsub := range j.unsubs {
		unsub()
	}
	j.unsubs = nil
}

func (j *Journal) store(eventType, accountID string, data any) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.repo.Store(ctx, repository.Event{
		EventType: eventType,
		AccountID: accountID,
		Data:      data,
		CreatedAt: time.Now(),
	}); err != nil {
		j.logger.Warn("journal %s for %s failed: %v", eventType, accountID, err)
	}
}
