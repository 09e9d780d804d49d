package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wb-supply-bot/internal/marketplace"
	"github.com/example/wb-supply-bot/internal/metrics"
	"github.com/example/wb-supply-bot/internal/storage"
	"github.com/example/wb-supply-bot/internal/supply"
)

type fakeStore struct {
	mu sync.Mutex

	user     storage.User
	accounts []storage.Account
	criteria supply.Criteria

	addErr    error
	nextID    int64
	booked    []supply.Slot
	attached  map[int64]string
	addCalled int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		user:     storage.User{ID: 1, TelegramID: 100},
		accounts: []storage.Account{{ID: 10, UserID: 1, APIKey: "k", Name: "Main", Active: true}},
		criteria: supply.DefaultCriteria(),
		nextID:   1,
		attached: map[int64]string{},
	}
}

func (f *fakeStore) GetUser(ctx context.Context, id int64) (storage.User, error) {
	return f.user, nil
}

func (f *fakeStore) Accounts(ctx context.Context, userID int64) ([]storage.Account, error) {
	return f.accounts, nil
}

func (f *fakeStore) Filters(ctx context.Context, userID int64) (supply.Criteria, error) {
	return f.criteria, nil
}

func (f *fakeStore) AddBookedSlot(ctx context.Context, userID, accountID int64, slot supply.Slot, autoBooked bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalled++
	if f.addErr != nil {
		return 0, f.addErr
	}
	f.booked = append(f.booked, slot)
	id := f.nextID
	f.nextID++
	return id, nil
}

func (f *fakeStore) AttachSupplyNumber(ctx context.Context, userID, bookedID int64, supplyNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[bookedID] = supplyNumber
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
	messages  []string
}

func (f *fakeNotifier) NotifyNewSlots(chatID int64, accountName string, slots []supply.Slot) {}

func (f *fakeNotifier) NotifyBookingSuccess(chatID int64, slot supply.Slot, accountName string, autoBooked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, slot.ID)
}

func (f *fakeNotifier) NotifyBookingError(chatID int64, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, message)
}

func (f *fakeNotifier) SendMessage(chatID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
}

type fakeAPI struct {
	slots   []supply.Slot
	slotErr error
	bookErr error
	booked  []string
}

func (f *fakeAPI) SupplySlots(ctx context.Context, horizonDays int) ([]supply.Slot, error) {
	return f.slots, f.slotErr
}

func (f *fakeAPI) Book(ctx context.Context, slotID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.bookErr != nil {
		return f.bookErr
	}
	f.booked = append(f.booked, slotID)
	return nil
}

func staticFactory(api *fakeAPI) ClientFactory {
	return func(apiKey string) SlotAPI { return api }
}

func testSlot(id string, coeff float64) supply.Slot {
	return supply.Slot{
		ID:            id,
		WarehouseID:   "507",
		WarehouseName: "Koledino",
		Date:          time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
		TimeStart:     "09:00",
		TimeEnd:       "12:00",
		Coefficient:   coeff,
		Available:     true,
	}
}

func TestBookSuccessPersistsAndNotifies(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	api := &fakeAPI{}
	e := NewExecutor(store, notifier, staticFactory(api), 14, metrics.New())

	ok, err := e.Book(context.Background(), store.user, store.accounts[0], testSlot("s1", 1.5), false)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []string{"s1"}, api.booked)
	require.Len(t, store.booked, 1)
	assert.Equal(t, "s1", store.booked[0].ID)
	assert.Equal(t, []string{"s1"}, notifier.successes)
	assert.Empty(t, notifier.failures)
}

func TestBookRejectionIsNotAnError(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	api := &fakeAPI{bookErr: &marketplace.BookingError{Message: "slot already taken"}}
	e := NewExecutor(store, notifier, staticFactory(api), 14, metrics.New())

	ok, err := e.Book(context.Background(), store.user, store.accounts[0], testSlot("s1", 1.5), true)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Zero(t, store.addCalled, "a rejected booking must not be persisted")
	assert.Equal(t, []string{"slot already taken"}, notifier.failures)
	assert.Empty(t, notifier.successes)
}

func TestBookUnexpectedErrorPropagates(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	api := &fakeAPI{bookErr: errors.New("connection reset")}
	e := NewExecutor(store, notifier, staticFactory(api), 14, metrics.New())

	ok, err := e.Book(context.Background(), store.user, store.accounts[0], testSlot("s1", 1.5), false)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Len(t, notifier.failures, 1)
}

func TestBookPersistFailureStillReportsBooked(t *testing.T) {
	store := newFakeStore()
	store.addErr = errors.New("db down")
	notifier := &fakeNotifier{}
	api := &fakeAPI{}
	e := NewExecutor(store, notifier, staticFactory(api), 14, metrics.New())

	// The upstream accepted the booking; the lost record must never turn the
	// outcome into a retry.
	ok, err := e.Book(context.Background(), store.user, store.accounts[0], testSlot("s1", 1.5), false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"s1"}, api.booked)
	assert.Equal(t, []string{"s1"}, notifier.successes)
}

func TestBookSurvivesCallerCancellation(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	api := &fakeAPI{}
	e := NewExecutor(store, notifier, staticFactory(api), 14, metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := e.Book(ctx, store.user, store.accounts[0], testSlot("s1", 1.5), false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, store.booked, 1)
}

func TestBookBySlotIDFindsAvailableSlot(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	api := &fakeAPI{slots: []supply.Slot{testSlot("s1", 1.5), testSlot("s2", 2.0)}}
	e := NewExecutor(store, notifier, staticFactory(api), 14, metrics.New())

	ok, err := e.BookBySlotID(context.Background(), 1, "s2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"s2"}, api.booked)
}

func TestBookBySlotIDMissingSlotNotifies(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	api := &fakeAPI{slots: []supply.Slot{testSlot("s1", 1.5)}}
	e := NewExecutor(store, notifier, staticFactory(api), 14, metrics.New())

	ok, err := e.BookBySlotID(context.Background(), 1, "gone")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, api.booked)
	require.Len(t, notifier.failures, 1)
	assert.Contains(t, notifier.failures[0], "not found")
}

func TestAutoBookBySupplyNumberBooksBestAndTags(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	api := &fakeAPI{slots: []supply.Slot{
		testSlot("low", 1.2),
		testSlot("best", 2.0),
	}}
	e := NewExecutor(store, notifier, staticFactory(api), 14, metrics.New())

	booked, err := e.AutoBookBySupplyNumber(context.Background(), 1, 10, "WB-777")
	require.NoError(t, err)
	require.True(t, booked)

	assert.Equal(t, []string{"best"}, api.booked)
	assert.Equal(t, "WB-777", store.attached[1])
}

func TestAutoBookBySupplyNumberNoMatchIsQuiet(t *testing.T) {
	store := newFakeStore()
	store.criteria.MinCoefficient = 5.0
	notifier := &fakeNotifier{}
	api := &fakeAPI{slots: []supply.Slot{testSlot("low", 1.2)}}
	e := NewExecutor(store, notifier, staticFactory(api), 14, metrics.New())

	booked, err := e.AutoBookBySupplyNumber(context.Background(), 1, 10, "WB-777")
	require.NoError(t, err)
	assert.False(t, booked)
	assert.Empty(t, api.booked)
	assert.Empty(t, notifier.failures)
}

func TestAutoBookBySupplyNumberInactiveAccount(t *testing.T) {
	store := newFakeStore()
	store.accounts[0].Active = false
	notifier := &fakeNotifier{}
	e := NewExecutor(store, notifier, staticFactory(&fakeAPI{}), 14, metrics.New())

	_, err := e.AutoBookBySupplyNumber(context.Background(), 1, 10, "WB-777")
	require.Error(t, err)
}
