package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/wb-supply-bot/internal/booking"
	"github.com/example/wb-supply-bot/internal/marketplace"
	"github.com/example/wb-supply-bot/internal/metrics"
	"github.com/example/wb-supply-bot/internal/notify"
	"github.com/example/wb-supply-bot/internal/storage"
	"github.com/example/wb-supply-bot/internal/supply"
)

type Store interface {
	ActiveUsers(ctx context.Context) ([]storage.User, error)
	Accounts(ctx context.Context, userID int64) ([]storage.Account, error)
	Filters(ctx context.Context, userID int64) (supply.Criteria, error)
	CountAutoBookedSince(ctx context.Context, userID int64, since time.Time) (int, error)
	TouchAccountCheck(ctx context.Context, accountID int64, t time.Time) error
	SetAccountActive(ctx context.Context, accountID int64, active bool) error
}

// Consecutive credential rejections before an account is disabled.
const maxAuthRejects = 3

type Booker interface {
	Book(ctx context.Context, user storage.User, account storage.Account, slot supply.Slot, autoBooked bool) (bool, error)
}

// Monitor is the single global polling loop: every tick it re-scans all
// active users' accounts, diffs visible slot IDs against the previous tick,
// and auto-books or notifies the new ones.
type Monitor struct {
	store    Store
	booker   Booker
	notifier notify.Notifier
	clients  booking.ClientFactory

	interval    time.Duration
	horizonDays int
	metrics     *metrics.Collector
	log         *logrus.Entry

	// seen is written only by the tick body; the loop is the sole goroutine
	// touching it. The set is replaced wholesale per account, so a slot that
	// disappears and reappears counts as new again.
	seen map[int64]map[int64]map[string]struct{}

	// authFails counts consecutive credential rejections per account; any
	// successful fetch resets it.
	authFails map[int64]int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(store Store, booker Booker, notifier notify.Notifier, clients booking.ClientFactory, interval time.Duration, horizonDays int, m *metrics.Collector) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		store:       store,
		booker:      booker,
		notifier:    notifier,
		clients:     clients,
		interval:    interval,
		horizonDays: horizonDays,
		metrics:     m,
		log:         logrus.WithField("component", "monitor"),
		seen:        make(map[int64]map[int64]map[string]struct{}),
		authFails:   make(map[int64]int),
	}
}

func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.log.Warn("monitor already running")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.loop(runCtx)
	m.log.Infof("supply monitoring started (every %s)", m.interval)
}

// Stop waits for the in-flight tick to finish before returning.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	m.log.Info("supply monitoring stopped")
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	t := time.NewTicker(m.interval)
	defer t.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	users, err := m.store.ActiveUsers(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.log.WithError(err).Error("listing active users")
		}
		return
	}

	for _, user := range users {
		if ctx.Err() != nil {
			return
		}
		if err := m.checkUser(ctx, user); err != nil && ctx.Err() == nil {
			m.log.WithError(err).Errorf("checking slots for user %d", user.ID)
		}
	}
	m.metrics.MonitorTicks.Inc()
}

func (m *Monitor) checkUser(ctx context.Context, user storage.User) error {
	criteria, err := m.store.Filters(ctx, user.ID)
	if err != nil {
		return err
	}
	accounts, err := m.store.Accounts(ctx, user.ID)
	if err != nil {
		return err
	}

	if m.seen[user.ID] == nil {
		m.seen[user.ID] = make(map[int64]map[string]struct{})
	}

	now := time.Now()
	for _, account := range accounts {
		if !account.Active {
			continue
		}

		client := m.clients(account.APIKey)
		slots, err := client.SupplySlots(ctx, m.horizonDays)
		if err != nil {
			// One bad account must not spoil the tick for the rest; it gets
			// retried next tick anyway.
			m.metrics.FetchErrors.Inc()
			switch {
			case errors.Is(err, marketplace.ErrRateLimited):
				m.log.Debugf("account %d rate limited, backing off this tick", account.ID)
			case errors.Is(err, marketplace.ErrInvalidCredential):
				m.authReject(ctx, user, account)
			default:
				m.log.WithError(err).Warnf("fetching slots for account %d", account.ID)
			}
			continue
		}
		delete(m.authFails, account.ID)
		m.metrics.SlotsFetched.Add(float64(len(slots)))
		if err := m.store.TouchAccountCheck(ctx, account.ID, now); err != nil {
			m.log.WithError(err).Debugf("touching account %d", account.ID)
		}

		var filtered []supply.Slot
		for _, s := range slots {
			if supply.Matches(s, criteria, now) {
				filtered = append(filtered, s)
			}
		}

		currentIDs := make(map[string]struct{}, len(filtered))
		for _, s := range filtered {
			currentIDs[s.ID] = struct{}{}
		}
		lastIDs := m.seen[user.ID][account.ID]
		m.seen[user.ID][account.ID] = currentIDs

		var newSlots []supply.Slot
		for _, s := range filtered {
			if _, ok := lastIDs[s.ID]; !ok {
				newSlots = append(newSlots, s)
			}
		}
		if len(newSlots) > 0 {
			m.metrics.NewSlots.Add(float64(len(newSlots)))
			m.processNewSlots(ctx, user, account, newSlots, criteria)
		}
	}
	return nil
}

// authReject disables an account after repeated credential rejections. A
// single 401 can be an upstream hiccup; a streak means the key was revoked.
func (m *Monitor) authReject(ctx context.Context, user storage.User, account storage.Account) {
	m.authFails[account.ID]++
	n := m.authFails[account.ID]
	m.log.Warnf("credential rejected for account %d (%d in a row)", account.ID, n)
	if n < maxAuthRejects {
		return
	}

	if err := m.store.SetAccountActive(ctx, account.ID, false); err != nil {
		m.log.WithError(err).Errorf("disabling account %d", account.ID)
		return
	}
	delete(m.authFails, account.ID)
	m.log.Infof("account %d disabled after repeated credential rejections", account.ID)
	m.notifier.SendMessage(user.TelegramID, fmt.Sprintf(
		"The marketplace keeps rejecting the API key of account %q, so I disabled it.\n"+
			"Reconnect it with /addaccount once the key is fixed.", account.Name))
}

// processNewSlots spends the user's remaining daily auto-booking budget on
// the best new slots, then notifies whatever is left.
func (m *Monitor) processNewSlots(ctx context.Context, user storage.User, account storage.Account, newSlots []supply.Slot, criteria supply.Criteria) {
	m.log.Infof("found %d new slots for user %d on account %d", len(newSlots), user.ID, account.ID)

	booked := make(map[string]struct{})
	if criteria.AutoBookingEnabled && criteria.AutoBookingLimit > 0 {
		count, err := m.store.CountAutoBookedSince(ctx, user.ID, midnightUTC(time.Now()))
		if err != nil {
			m.log.WithError(err).Errorf("counting today's bookings for user %d", user.ID)
			count = criteria.AutoBookingLimit // fail closed: no budget without a count
		}
		remaining := criteria.AutoBookingLimit - count

		candidates := make([]supply.Slot, len(newSlots))
		copy(candidates, newSlots)
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Coefficient > candidates[j].Coefficient
		})

		for _, slot := range candidates {
			if remaining <= 0 {
				break
			}
			ok, err := m.booker.Book(ctx, user, account, slot, true)
			if err != nil {
				m.log.WithError(err).Errorf("auto-booking slot %s for user %d", slot.ID, user.ID)
				continue
			}
			if ok {
				remaining--
				booked[slot.ID] = struct{}{}
			}
		}
	}

	var toNotify []supply.Slot
	for _, s := range newSlots {
		if _, ok := booked[s.ID]; !ok {
			toNotify = append(toNotify, s)
		}
	}
	if len(toNotify) > 0 && criteria.NotificationsEnabled {
		m.notifier.NotifyNewSlots(user.TelegramID, account.Name, toNotify)
	}
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
