package booking

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/wb-supply-bot/internal/marketplace"
	"github.com/example/wb-supply-bot/internal/metrics"
	"github.com/example/wb-supply-bot/internal/notify"
	"github.com/example/wb-supply-bot/internal/storage"
	"github.com/example/wb-supply-bot/internal/supply"
)

// Store is the slice of persistence the executor needs.
type Store interface {
	GetUser(ctx context.Context, id int64) (storage.User, error)
	Accounts(ctx context.Context, userID int64) ([]storage.Account, error)
	Filters(ctx context.Context, userID int64) (supply.Criteria, error)
	AddBookedSlot(ctx context.Context, userID, accountID int64, slot supply.Slot, autoBooked bool) (int64, error)
	AttachSupplyNumber(ctx context.Context, userID, bookedID int64, supplyNumber string) error
}

// SlotAPI is the per-credential marketplace surface the executor consumes.
type SlotAPI interface {
	SupplySlots(ctx context.Context, horizonDays int) ([]supply.Slot, error)
	Book(ctx context.Context, slotID string) error
}

// ClientFactory builds a SlotAPI for one credential, reading the runtime
// demo switches at construction time.
type ClientFactory func(apiKey string) SlotAPI

type Executor struct {
	store       Store
	notifier    notify.Notifier
	clients     ClientFactory
	horizonDays int
	metrics     *metrics.Collector
	log         *logrus.Entry
}

func NewExecutor(store Store, notifier notify.Notifier, clients ClientFactory, horizonDays int, m *metrics.Collector) *Executor {
	return &Executor{
		store:       store,
		notifier:    notifier,
		clients:     clients,
		horizonDays: horizonDays,
		metrics:     m,
		log:         logrus.WithField("component", "booking"),
	}
}

// Book performs the booking call, persists the record, and notifies, in that
// order. A BookingError is recovered locally (error notification, false);
// anything else propagates after a best-effort notification. Returns true
// only when the upstream accepted the booking.
func (e *Executor) Book(ctx context.Context, user storage.User, account storage.Account, slot supply.Slot, autoBooked bool) (bool, error) {
	_, booked, err := e.book(ctx, user, account, slot, autoBooked)
	return booked, err
}

// book returns the persisted record ID alongside the outcome so callers can
// attach the supply number afterwards. The book-call/persist/notify sequence
// runs detached from the caller's cancellation: once the upstream call is in
// flight, cancelling the search must not drop the local record of a booking
// that actually happened.
func (e *Executor) book(ctx context.Context, user storage.User, account storage.Account, slot supply.Slot, autoBooked bool) (int64, bool, error) {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
	defer cancel()

	client := e.clients(account.APIKey)
	if err := client.Book(opCtx, slot.ID); err != nil {
		var be *marketplace.BookingError
		if errors.As(err, &be) {
			e.log.Infof("booking rejected for user %d slot %s: %v", user.ID, slot.ID, err)
			e.metrics.RecordBooking("rejected", autoBooked)
			e.notifier.NotifyBookingError(user.TelegramID, be.Message)
			return 0, false, nil
		}
		e.log.WithError(err).Errorf("booking slot %s for user %d", slot.ID, user.ID)
		e.metrics.RecordBooking("error", autoBooked)
		e.notifier.NotifyBookingError(user.TelegramID, "unexpected error while booking")
		return 0, false, err
	}

	recordID, err := e.store.AddBookedSlot(opCtx, user.ID, account.ID, slot, autoBooked)
	if err != nil {
		// The booking happened upstream. Never re-book; the missing local
		// record is an inconsistency to investigate, not retry.
		e.log.WithError(err).Errorf("booked slot %s (user %d, account %d) but persisting failed", slot.ID, user.ID, account.ID)
	}

	e.metrics.RecordBooking("booked", autoBooked)
	e.notifier.NotifyBookingSuccess(user.TelegramID, slot, account.Name, autoBooked)
	e.log.Infof("booked slot %s for user %d (auto=%v)", slot.ID, user.ID, autoBooked)
	return recordID, true, nil
}

// BookBySlotID reacts to a "book this slot" action from a notification. Slot
// IDs are not stable across polls, so the slot is re-located by ID in a
// fresh fetch per account, in account creation order. A missing slot is a
// normal race, reported to the user, not an error.
func (e *Executor) BookBySlotID(ctx context.Context, userID int64, slotID string) (bool, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	accounts, err := e.store.Accounts(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, account := range accounts {
		if !account.Active {
			continue
		}
		client := e.clients(account.APIKey)
		slots, err := client.SupplySlots(ctx, e.horizonDays)
		if err != nil {
			e.log.WithError(err).Warnf("fetching slots on account %d", account.ID)
			continue
		}
		for _, s := range slots {
			if s.ID == slotID && s.Available {
				return e.Book(ctx, user, account, s, false)
			}
		}
	}

	e.notifier.NotifyBookingError(user.TelegramID, "slot not found or already taken")
	return false, nil
}

// AutoBookBySupplyNumber is one continuous-search attempt: fetch, pick the
// best slot per the user's criteria, book it, and tag the record with the
// supply number. No matching slot is the expected common case and returns
// false without error.
func (e *Executor) AutoBookBySupplyNumber(ctx context.Context, userID, accountID int64, supplyNumber string) (bool, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	accounts, err := e.store.Accounts(ctx, userID)
	if err != nil {
		return false, err
	}
	var account *storage.Account
	for i := range accounts {
		if accounts[i].ID == accountID && accounts[i].Active {
			account = &accounts[i]
			break
		}
	}
	if account == nil {
		return false, errors.New("account not found or inactive")
	}

	criteria, err := e.store.Filters(ctx, userID)
	if err != nil {
		return false, err
	}

	client := e.clients(account.APIKey)
	slots, err := client.SupplySlots(ctx, e.horizonDays)
	if err != nil {
		return false, err
	}

	best, ok := supply.SelectBest(slots, criteria, time.Now())
	if !ok {
		return false, nil
	}

	recordID, booked, err := e.book(ctx, user, *account, best, true)
	if booked && recordID != 0 {
		// Tagging belongs to the same non-cancellable window as the persist.
		if aerr := e.store.AttachSupplyNumber(context.WithoutCancel(ctx), userID, recordID, supplyNumber); aerr != nil {
			e.log.WithError(aerr).Errorf("attaching supply number to booking %d", recordID)
		}
	}
	return booked, err
}
