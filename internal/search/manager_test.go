package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wb-supply-bot/internal/metrics"
	"github.com/example/wb-supply-bot/internal/storage"
	"github.com/example/wb-supply-bot/internal/supply"
)

type stubStore struct {
	accounts []storage.Account
}

func (s *stubStore) GetUser(ctx context.Context, id int64) (storage.User, error) {
	return storage.User{ID: id, TelegramID: 100 + id}, nil
}

func (s *stubStore) Accounts(ctx context.Context, userID int64) ([]storage.Account, error) {
	return s.accounts, nil
}

// stubBooker books successfully on the configured attempt, erroring or
// passing until then.
type stubBooker struct {
	mu     sync.Mutex
	calls  int
	bookOn int
	err    error
}

func (b *stubBooker) AutoBookBySupplyNumber(ctx context.Context, userID, accountID int64, supplyNumber string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return false, b.err
	}
	return b.bookOn > 0 && b.calls >= b.bookOn, nil
}

func (b *stubBooker) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type stubNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *stubNotifier) NotifyNewSlots(chatID int64, accountName string, slots []supply.Slot) {}
func (n *stubNotifier) NotifyBookingSuccess(chatID int64, slot supply.Slot, accountName string, autoBooked bool) {
}
func (n *stubNotifier) NotifyBookingError(chatID int64, message string) {}

func (n *stubNotifier) SendMessage(chatID int64, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func (n *stubNotifier) hasMessage(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func activeAccount() []storage.Account {
	return []storage.Account{{ID: 10, UserID: 1, Name: "Main", Active: true}}
}

func TestStartRejectsUnknownOrInactiveAccount(t *testing.T) {
	store := &stubStore{accounts: activeAccount()}
	m := NewManager(store, &stubBooker{}, &stubNotifier{}, time.Millisecond, metrics.New())

	err := m.Start(context.Background(), 1, 99, "WB-1")
	require.Error(t, err)
	assert.False(t, m.IsSearching(1))

	store.accounts[0].Active = false
	err = m.Start(context.Background(), 1, 10, "WB-1")
	require.Error(t, err)
	assert.False(t, m.IsSearching(1))
}

func TestSearchBooksAndFinishes(t *testing.T) {
	store := &stubStore{accounts: activeAccount()}
	booker := &stubBooker{bookOn: 3}
	notifier := &stubNotifier{}
	m := NewManager(store, booker, notifier, time.Millisecond, metrics.New())

	require.NoError(t, m.Start(context.Background(), 1, 10, "WB-1"))
	waitFor(t, func() bool { return !m.IsSearching(1) })

	assert.Equal(t, 3, booker.callCount())
	assert.True(t, notifier.hasMessage("booked after 3 attempts"))
}

func TestStopEndsSearchAndReports(t *testing.T) {
	store := &stubStore{accounts: activeAccount()}
	booker := &stubBooker{} // never books
	notifier := &stubNotifier{}
	m := NewManager(store, booker, notifier, time.Millisecond, metrics.New())

	require.NoError(t, m.Start(context.Background(), 1, 10, "WB-1"))
	waitFor(t, func() bool { return booker.callCount() > 0 })

	assert.True(t, m.Stop(1))
	assert.False(t, m.IsSearching(1))
	assert.True(t, notifier.hasMessage("stopped"))

	// A second stop has nothing to do.
	assert.False(t, m.Stop(1))
}

func TestNewSearchReplacesPrevious(t *testing.T) {
	store := &stubStore{accounts: activeAccount()}
	booker := &stubBooker{}
	notifier := &stubNotifier{}
	m := NewManager(store, booker, notifier, time.Millisecond, metrics.New())

	require.NoError(t, m.Start(context.Background(), 1, 10, "WB-old"))
	require.NoError(t, m.Start(context.Background(), 1, 10, "WB-new"))

	info, ok := m.SessionInfo(1)
	require.True(t, ok)
	assert.Equal(t, "WB-new", info.SupplyNumber)
	assert.Equal(t, 1, m.ActiveCount())

	m.StopAll()
	assert.Zero(t, m.ActiveCount())
}

func TestSearchKeepsGoingThroughErrors(t *testing.T) {
	store := &stubStore{accounts: activeAccount()}
	booker := &stubBooker{err: errors.New("upstream flake")}
	notifier := &stubNotifier{}
	m := NewManager(store, booker, notifier, time.Millisecond, metrics.New())

	require.NoError(t, m.Start(context.Background(), 1, 10, "WB-1"))
	waitFor(t, func() bool { return booker.callCount() >= 5 })

	assert.True(t, m.IsSearching(1), "errors must not end the search")
	m.StopAll()
}
