package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/example/wb-supply-bot/internal/supply"
)

// At most this many slots per new-slot notification; the rest are dropped to
// keep the chat readable.
const maxSlotsPerNotification = 5

type Telegram struct {
	bot *tgbotapi.BotAPI
	log *logrus.Entry
}

func NewTelegram(bot *tgbotapi.BotAPI) *Telegram {
	return &Telegram{bot: bot, log: logrus.WithField("component", "notify")}
}

func (t *Telegram) NotifyNewSlots(chatID int64, accountName string, slots []supply.Slot) {
	if len(slots) > maxSlotsPerNotification {
		slots = slots[:maxSlotsPerNotification]
	}
	for _, slot := range slots {
		msg := tgbotapi.NewMessage(chatID, formatSlot(slot, accountName))
		msg.ParseMode = tgbotapi.ModeHTML
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Book now", "book:"+slot.ID),
			),
		)
		t.send(chatID, msg)
	}
}

func (t *Telegram) NotifyBookingSuccess(chatID int64, slot supply.Slot, accountName string, autoBooked bool) {
	prefix := "Booked"
	if autoBooked {
		prefix = "Auto-booked"
	}
	text := fmt.Sprintf(
		"%s a slot!\n\nAccount: %s\nWarehouse: %s\nDate: %s\nTime: %s\nCoefficient: x%.1f",
		prefix, accountName, slot.WarehouseName, slot.DateString(), slot.TimeSlot(), slot.Coefficient,
	)
	t.send(chatID, tgbotapi.NewMessage(chatID, text))
}

func (t *Telegram) NotifyBookingError(chatID int64, message string) {
	t.send(chatID, tgbotapi.NewMessage(chatID, "Booking failed:\n"+message))
}

func (t *Telegram) SendMessage(chatID int64, text string) {
	t.send(chatID, tgbotapi.NewMessage(chatID, text))
}

func (t *Telegram) send(chatID int64, msg tgbotapi.Chattable) {
	if _, err := t.bot.Send(msg); err != nil {
		if strings.Contains(err.Error(), "chat not found") || strings.Contains(err.Error(), "blocked") {
			t.log.Warnf("user %d is unreachable", chatID)
			return
		}
		t.log.WithError(err).Errorf("sending to %d", chatID)
	}
}

func formatSlot(slot supply.Slot, accountName string) string {
	return fmt.Sprintf(
		"<b>New slot</b>\n\nAccount: %s\nWarehouse: <b>%s</b>\nDate: <b>%s</b>\nTime: <b>%s</b>\nCoefficient: <b>x%.1f</b>",
		accountName, slot.WarehouseName, slot.DateString(), slot.TimeSlot(), slot.Coefficient,
	)
}
