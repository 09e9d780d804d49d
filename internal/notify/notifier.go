package notify

import "github.com/example/wb-supply-bot/internal/supply"

// Notifier delivers user-facing messages. Delivery is best-effort:
// implementations log failures and never surface them to the calling loops.
type Notifier interface {
	NotifyNewSlots(chatID int64, accountName string, slots []supply.Slot)
	NotifyBookingSuccess(chatID int64, slot supply.Slot, accountName string, autoBooked bool)
	NotifyBookingError(chatID int64, message string)
	SendMessage(chatID int64, text string)
}
