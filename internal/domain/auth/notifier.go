package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/platform/logging"
)

// DefaultNotifyCooldown is the window in which repeated notifications for
// the same account and error code are suppressed.
const DefaultNotifyCooldown = 10 * time.Second

// Notifier publishes user-visible notifications, at most one per
// (account, code) within the cooldown.
type Notifier struct {
	events   eventbus.Publisher
	logger   logging.Logger
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewNotifier publishes on events, at most once per key within cooldown.
func NewNotifier(events eventbus.Publisher, cooldown time.Duration, logger logging.Logger) *Notifier {
	if cooldown <= 0 {
		cooldown = DefaultNotifyCooldown
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Notifier{
		events:   events,
		logger:   logger,
		cooldown: cooldown,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Notify publishes the notification unless one with the same account and
// code went out within the cooldown. It reports whether it was published.
func (n *Notifier) Notify(note eventbus.Notification) bool {
	key := note.AccountID + ":" + note.Code

	n.mu.Lock()
	limiter, ok := n.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(n.cooldown), 1)
		n.limiters[key] = limiter
	}
	allowed := limiter.AllowN(n.now(), 1)
	n.mu.Unlock()

	if !allowed {
		n.logger.Debug("notification %s for %s suppressed", note.Code, note.AccountID)
		return false
	}
	if n.events != nil {
		n.events.Publish(eventbus.EventNotification, note)
	}
	return true
}
