package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Admin panel: runtime switches for the upstream API. Changes apply to
// clients built after the flip; running monitor ticks and searches pick them
// up on their next client construction.

func (b *Bot) cmdAdmin(ctx context.Context, msg *tgbotapi.Message) {
	if !b.cfg.IsAdmin(msg.From.ID) {
		b.reply(msg.Chat.ID, "Unknown command. Try /help.")
		return
	}
	m := tgbotapi.NewMessage(msg.Chat.ID, b.adminText())
	m.ReplyMarkup = b.adminKeyboard()
	if _, err := b.api.Send(m); err != nil {
		b.log.WithError(err).Error("sending admin panel")
	}
}

func (b *Bot) handleAdminCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if !b.cfg.IsAdmin(cb.From.ID) {
		b.answer(cb.ID, "Not allowed")
		return
	}

	rt := b.cfg.Runtime
	switch cb.Data {
	case "admin_demo":
		on := rt.ToggleForceDemo()
		b.log.Warnf("admin %d set force-demo=%v", cb.From.ID, on)
		b.answer(cb.ID, fmt.Sprintf("Demo mode: %s", onOff(on)))
	case "admin_fallback":
		on := rt.ToggleDemoFallback()
		b.log.Warnf("admin %d set demo-fallback=%v", cb.From.ID, on)
		b.answer(cb.ID, fmt.Sprintf("Demo fallback: %s", onOff(on)))
	case "admin_backup":
		state := rt.Snapshot()
		rt.SetUseBackupURL(!state.UseBackupURL)
		b.log.Warnf("admin %d set use-backup-url=%v", cb.From.ID, !state.UseBackupURL)
		b.answer(cb.ID, fmt.Sprintf("Backup URL first: %s", onOff(!state.UseBackupURL)))
	case "admin_status":
		b.answer(cb.ID, "")
	default:
		b.answer(cb.ID, "")
		return
	}

	// Redraw the panel so the shown state matches the new reality.
	edit := tgbotapi.NewEditMessageTextAndMarkup(
		cb.Message.Chat.ID, cb.Message.MessageID, b.adminText(), b.adminKeyboard())
	if _, err := b.api.Send(edit); err != nil {
		b.log.WithError(err).Debug("redrawing admin panel")
	}
}

func (b *Bot) adminText() string {
	s := b.cfg.Runtime.Snapshot()
	return fmt.Sprintf(
		"Admin panel\n"+
			"Force demo mode: %s\n"+
			"Demo fallback on API failure: %s\n"+
			"Try backup URL first: %s\n"+
			"Active searches: %d, monitor running: %v",
		onOff(s.ForceDemo), onOff(s.AllowDemoFallback), onOff(s.UseBackupURL),
		b.searches.ActiveCount(), b.monitor.Running(),
	)
}

func (b *Bot) adminKeyboard() tgbotapi.InlineKeyboardMarkup {
	s := b.cfg.Runtime.Snapshot()
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Demo mode: "+onOff(s.ForceDemo), "admin_demo"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Demo fallback: "+onOff(s.AllowDemoFallback), "admin_fallback"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Backup URL first: "+onOff(s.UseBackupURL), "admin_backup"),
		),
	)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
