package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/wb-supply-bot/internal/metrics"
	"github.com/example/wb-supply-bot/internal/notify"
	"github.com/example/wb-supply-bot/internal/storage"
)

// Booker is one find-best-slot-then-book attempt. False without error means
// no matching slot right now.
type Booker interface {
	AutoBookBySupplyNumber(ctx context.Context, userID, accountID int64, supplyNumber string) (bool, error)
}

type Store interface {
	GetUser(ctx context.Context, id int64) (storage.User, error)
	Accounts(ctx context.Context, userID int64) ([]storage.Account, error)
}

const (
	progressEvery = 10 // attempts between "still searching" notifications
	warnEvery     = 20 // failed attempts between error warnings
)

// Manager owns at most one continuous search per user. Starting a new search
// stops the previous one; the session map never holds an entry for a dead
// task.
type Manager struct {
	store    Store
	booker   Booker
	notifier notify.Notifier
	interval time.Duration
	metrics  *metrics.Collector
	log      *logrus.Entry

	mu       sync.Mutex
	sessions map[int64]*session
}

type session struct {
	userID       int64
	accountID    int64
	chatID       int64
	supplyNumber string
	accountName  string
	startedAt    time.Time
	cancel       context.CancelFunc
	done         chan struct{}
}

// Info is the read-only session view for status display.
type Info struct {
	SupplyNumber string
	AccountID    int64
	AccountName  string
	StartedAt    time.Time
}

func NewManager(store Store, booker Booker, notifier notify.Notifier, interval time.Duration, m *metrics.Collector) *Manager {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Manager{
		store:    store,
		booker:   booker,
		notifier: notifier,
		interval: interval,
		metrics:  m,
		log:      logrus.WithField("component", "search"),
		sessions: make(map[int64]*session),
	}
}

// Start begins a continuous search for the given supply. Any existing search
// for the user is stopped first; the new request wins. The returned error
// covers session creation only, never the eventual search outcome.
func (m *Manager) Start(ctx context.Context, userID, accountID int64, supplyNumber string) error {
	m.Stop(userID)

	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	accounts, err := m.store.Accounts(ctx, userID)
	if err != nil {
		return err
	}
	var account *storage.Account
	for i := range accounts {
		if accounts[i].ID == accountID {
			account = &accounts[i]
			break
		}
	}
	if account == nil || account.UserID != userID {
		return errors.New("account not found")
	}
	if !account.Active {
		return errors.New("account is disabled")
	}

	// Sessions outlive the request that created them; only Stop/StopAll or a
	// terminal transition ends the loop.
	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		userID:       userID,
		accountID:    accountID,
		chatID:       user.TelegramID,
		supplyNumber: supplyNumber,
		accountName:  account.Name,
		startedAt:    time.Now(),
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()
	m.metrics.ActiveSearches.Inc()

	go m.run(sctx, s)

	m.log.Infof("started search for supply %s (user %d, account %d)", supplyNumber, userID, accountID)
	m.notifier.SendMessage(s.chatID, fmt.Sprintf(
		"Searching for a slot for supply %s on account %q.\nChecking every %s; the first matching slot is booked automatically.",
		supplyNumber, account.Name, m.interval,
	))
	return nil
}

// Stop cancels the user's search, waits for the loop to exit, and reports
// the elapsed time. Returns false when there was nothing to stop.
func (m *Manager) Stop(userID int64) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	s.cancel()
	<-s.done

	elapsed := time.Since(s.startedAt).Round(time.Second)
	m.log.Infof("stopped search for user %d after %s", userID, elapsed)
	m.notifier.SendMessage(s.chatID, fmt.Sprintf(
		"Search for supply %s stopped after %s.", s.supplyNumber, elapsed,
	))
	return true
}

// StopAll tears down every session at shutdown. Best-effort: no per-session
// notifications.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[int64]*session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
	}
	for _, s := range sessions {
		<-s.done
	}
	if len(sessions) > 0 {
		m.log.Infof("stopped %d active searches", len(sessions))
	}
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) IsSearching(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

func (m *Manager) SessionInfo(userID int64) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return Info{}, false
	}
	return Info{
		SupplyNumber: s.supplyNumber,
		AccountID:    s.accountID,
		AccountName:  s.accountName,
		StartedAt:    s.startedAt,
	}, true
}

func (m *Manager) run(ctx context.Context, s *session) {
	defer close(s.done)
	defer m.metrics.ActiveSearches.Dec()

	attempts, failures := 0, 0
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("search for user %d died: %v", s.userID, r)
			if m.removeOwn(s) {
				m.notifier.SendMessage(s.chatID, fmt.Sprintf(
					"Search for supply %s hit a fatal error after %d attempts. Please start it again.",
					s.supplyNumber, attempts,
				))
			}
		}
	}()

	for {
		attempts++
		m.metrics.SearchAttempts.Inc()

		booked, err := m.booker.AutoBookBySupplyNumber(ctx, s.userID, s.accountID, s.supplyNumber)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			// Transient failures never abort the search.
			failures++
			m.log.WithError(err).Warnf("search attempt %d for user %d", attempts, s.userID)
			if failures%warnEvery == 0 {
				m.notifier.SendMessage(s.chatID, fmt.Sprintf(
					"Search for supply %s keeps hitting errors (%d so far). Still trying.",
					s.supplyNumber, failures,
				))
			}
		case booked:
			if m.removeOwn(s) {
				m.log.Infof("booked supply %s for user %d after %d attempts", s.supplyNumber, s.userID, attempts)
				m.notifier.SendMessage(s.chatID, fmt.Sprintf(
					"Supply %s booked after %d attempts. Search finished.",
					s.supplyNumber, attempts,
				))
			}
			return
		default:
			if attempts%progressEvery == 0 {
				m.notifier.SendMessage(s.chatID, fmt.Sprintf(
					"Still searching for supply %s: %d attempts, last check %s.",
					s.supplyNumber, attempts, time.Now().Format("15:04:05"),
				))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
	}
}

// removeOwn deletes the session only if the map still points at this exact
// loop; a concurrent Stop/Start may already have replaced it.
func (m *Manager) removeOwn(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.userID]; ok && cur == s {
		delete(m.sessions, s.userID)
		return true
	}
	return false
}
