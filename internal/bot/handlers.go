package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/wb-supply-bot/internal/storage"
	"github.com/example/wb-supply-bot/internal/supply"
)

func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	from := msg.From
	user, err := b.store.CreateUser(ctx, from.ID, from.UserName, from.FirstName, from.LastName)
	if err != nil {
		b.log.WithError(err).Errorf("registering user %d", from.ID)
		b.reply(msg.Chat.ID, "Something went wrong, please try again.")
		return
	}
	b.log.Infof("user %d (%s) registered", user.ID, from.UserName)
	b.reply(msg.Chat.ID,
		"Welcome! I watch marketplace supply slots for you.\n"+
			"Connect an account with /addaccount, then tune /filters.\n"+
			"Use /help for the full command list.")
}

func (b *Bot) cmdAccounts(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.mustUser(ctx, msg)
	if !ok {
		return
	}
	accounts, err := b.store.Accounts(ctx, user.ID)
	if err != nil {
		b.log.WithError(err).Errorf("listing accounts for user %d", user.ID)
		b.reply(msg.Chat.ID, "Could not load your accounts, please try again.")
		return
	}
	if len(accounts) == 0 {
		b.reply(msg.Chat.ID, "No accounts yet. Connect one with /addaccount.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your accounts:\n")
	for _, a := range accounts {
		state := "active"
		if !a.Active {
			state = "disabled"
		}
		last := "never"
		if a.LastCheck != nil {
			last = a.LastCheck.Format("02.01.2006 15:04")
		}
		fmt.Fprintf(&sb, "#%d %s — %s, last check %s\n", a.ID, a.Name, state, last)
	}
	b.reply(msg.Chat.ID, sb.String())
}

func (b *Bot) cmdAddAccount(msg *tgbotapi.Message) {
	b.setConversation(msg.Chat.ID, &conversation{step: "api_key"})
	b.reply(msg.Chat.ID,
		"Send me the supplier API key.\n"+
			"It is verified against the marketplace and stored encrypted. Send /cancel to abort.")
}

// handleText drives the add-account dialog; any other free text gets a hint.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	conv := b.getConversation(msg.Chat.ID)
	if conv == nil {
		b.reply(msg.Chat.ID, "I only understand commands. Try /help.")
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "/cancel" || text == "cancel" {
		b.clearConversation(msg.Chat.ID)
		b.reply(msg.Chat.ID, "Cancelled.")
		return
	}

	switch conv.step {
	case "api_key":
		b.stepAPIKey(ctx, msg, conv, text)
	case "account_name":
		b.stepAccountName(ctx, msg, conv, text)
	}
}

func (b *Bot) stepAPIKey(ctx context.Context, msg *tgbotapi.Message, conv *conversation, key string) {
	user, ok := b.mustUser(ctx, msg)
	if !ok {
		return
	}
	n, err := b.store.CountAccounts(ctx, user.ID)
	if err != nil {
		b.log.WithError(err).Errorf("counting accounts for user %d", user.ID)
		b.reply(msg.Chat.ID, "Something went wrong, please try again.")
		return
	}
	if n >= b.cfg.MaxAccountsPerUser {
		b.clearConversation(msg.Chat.ID)
		b.reply(msg.Chat.ID, fmt.Sprintf(
			"Account limit reached (%d). Remove one with /delaccount first.", b.cfg.MaxAccountsPerUser))
		return
	}

	client := b.client(key)
	valid, err := client.ValidateCredential(ctx)
	if err != nil {
		b.log.WithError(err).Warnf("validating credential for user %d", user.ID)
		b.reply(msg.Chat.ID, "Could not reach the marketplace to verify the key. Try again in a minute.")
		return
	}
	if !valid {
		b.reply(msg.Chat.ID, "The marketplace rejected this key. Check it and send again, or /cancel.")
		return
	}

	conv.step = "account_name"
	conv.apiKey = key
	note := ""
	if client.Degraded() {
		note = "\n(The marketplace API is unreachable right now; running against demo data.)"
	}
	b.reply(msg.Chat.ID, "Key verified. Now send a name for this account, e.g. \"Main store\"."+note)
}

func (b *Bot) stepAccountName(ctx context.Context, msg *tgbotapi.Message, conv *conversation, name string) {
	user, ok := b.mustUser(ctx, msg)
	if !ok {
		return
	}
	if name == "" || len(name) > 64 {
		b.reply(msg.Chat.ID, "Please send a name between 1 and 64 characters.")
		return
	}
	account, err := b.store.AddAccount(ctx, user.ID, conv.apiKey, name)
	if err != nil {
		b.log.WithError(err).Errorf("adding account for user %d", user.ID)
		b.reply(msg.Chat.ID, "Could not save the account, please try again.")
		return
	}
	b.clearConversation(msg.Chat.ID)
	b.log.Infof("account %d (%s) added for user %d", account.ID, name, user.ID)
	b.reply(msg.Chat.ID, fmt.Sprintf(
		"Account %q connected. Slot monitoring is on; tune what I watch with /filters.", name))
}

func (b *Bot) cmdDelAccount(ctx context.Context, msg *tgbotapi.Message, args []string) {
	user, ok := b.mustUser(ctx, msg)
	if !ok {
		return
	}
	if len(args) != 1 {
		b.reply(msg.Chat.ID, "Usage: /delaccount <account id> (see /accounts)")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.reply(msg.Chat.ID, "Account id must be a number.")
		return
	}
	if err := b.store.DeleteAccount(ctx, id, user.ID); err != nil {
		b.log.WithError(err).Errorf("deleting account %d for user %d", id, user.ID)
		b.reply(msg.Chat.ID, "Could not delete the account, please try again.")
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Account #%d removed.", id))
}

func (b *Bot) cmdFilters(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.mustUser(ctx, msg)
	if !ok {
		return
	}
	c, err := b.store.Filters(ctx, user.ID)
	if err != nil {
		b.log.WithError(err).Errorf("loading filters for user %d", user.ID)
		b.reply(msg.Chat.ID, "Could not load your filters, please try again.")
		return
	}
	b.reply(msg.Chat.ID, formatCriteria(c))
}

func formatCriteria(c supply.Criteria) string {
	var sb strings.Builder
	sb.WriteString("Current filters:\n")

	warehouses := "all"
	if len(c.Warehouses) > 0 {
		warehouses = strings.Join(c.Warehouses, ", ")
	}
	fmt.Fprintf(&sb, "Warehouses: %s\n", warehouses)
	fmt.Fprintf(&sb, "Min coefficient: %.1f\n", c.MinCoefficient)
	if c.MaxCoefficient != nil {
		fmt.Fprintf(&sb, "Max coefficient: %.1f\n", *c.MaxCoefficient)
	} else {
		sb.WriteString("Max coefficient: none\n")
	}
	if len(c.TimeWindows) > 0 {
		var ws []string
		for _, w := range c.TimeWindows {
			ws = append(ws, fmt.Sprintf("%02d:00-%02d:00", w.StartHour, w.EndHour))
		}
		fmt.Fprintf(&sb, "Time windows: %s\n", strings.Join(ws, ", "))
	}
	if c.AutoBookingEnabled {
		fmt.Fprintf(&sb, "Auto-booking: on, up to %d per day\n", c.AutoBookingLimit)
	} else {
		sb.WriteString("Auto-booking: off\n")
	}
	if c.NotificationsEnabled {
		sb.WriteString("Notifications: on")
		if c.QuietHoursStart != nil && c.QuietHoursEnd != nil {
			fmt.Fprintf(&sb, " (quiet %02d:00-%02d:00)", *c.QuietHoursStart, *c.QuietHoursEnd)
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("Notifications: off\n")
	}
	return sb.String()
}

// updateCriteria loads, mutates, validates, and saves in one place so every
// settings command shares the same error handling.
func (b *Bot) updateCriteria(ctx context.Context, msg *tgbotapi.Message, mutate func(*supply.Criteria) (string, error)) {
	user, ok := b.mustUser(ctx, msg)
	if !ok {
		return
	}
	c, err := b.store.Filters(ctx, user.ID)
	if err != nil {
		b.log.WithError(err).Errorf("loading filters for user %d", user.ID)
		b.reply(msg.Chat.ID, "Could not load your filters, please try again.")
		return
	}
	confirmation, err := mutate(&c)
	if err != nil {
		b.reply(msg.Chat.ID, err.Error())
		return
	}
	if err := b.store.UpdateFilters(ctx, user.ID, c); err != nil {
		b.log.WithError(err).Errorf("saving filters for user %d", user.ID)
		b.reply(msg.Chat.ID, "Could not save: "+err.Error())
		return
	}
	b.reply(msg.Chat.ID, confirmation)
}

func (b *Bot) cmdSetCoefficient(ctx context.Context, msg *tgbotapi.Message, args []string, max bool) {
	usage := "Usage: /setmin <coefficient>, e.g. /setmin 1.5"
	if max {
		usage = "Usage: /setmax <coefficient> or /setmax off"
	}
	if len(args) != 1 {
		b.reply(msg.Chat.ID, usage)
		return
	}
	b.updateCriteria(ctx, msg, func(c *supply.Criteria) (string, error) {
		if max && args[0] == "off" {
			c.MaxCoefficient = nil
			return "Max coefficient removed.", nil
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil || v < 0 {
			return "", fmt.Errorf("%s", usage)
		}
		if max {
			c.MaxCoefficient = &v
			return fmt.Sprintf("Max coefficient set to %.1f.", v), nil
		}
		c.MinCoefficient = v
		return fmt.Sprintf("Min coefficient set to %.1f.", v), nil
	})
}

func (b *Bot) cmdWarehouses(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) != 1 {
		b.reply(msg.Chat.ID, "Usage: /warehouses <id,id,...> or /warehouses all")
		return
	}
	b.updateCriteria(ctx, msg, func(c *supply.Criteria) (string, error) {
		if args[0] == "all" {
			c.Warehouses = nil
			return "Watching all warehouses.", nil
		}
		var ids []string
		for _, p := range strings.Split(args[0], ",") {
			if p = strings.TrimSpace(p); p != "" {
				ids = append(ids, p)
			}
		}
		if len(ids) == 0 {
			return "", fmt.Errorf("no warehouse ids given")
		}
		c.Warehouses = ids
		return fmt.Sprintf("Watching warehouses: %s.", strings.Join(ids, ", ")), nil
	})
}

func (b *Bot) cmdAutoBook(ctx context.Context, msg *tgbotapi.Message, args []string) {
	usage := "Usage: /autobook on | off | limit <n>"
	if len(args) == 0 {
		b.reply(msg.Chat.ID, usage)
		return
	}
	b.updateCriteria(ctx, msg, func(c *supply.Criteria) (string, error) {
		switch args[0] {
		case "on":
			c.AutoBookingEnabled = true
			return fmt.Sprintf("Auto-booking on, up to %d slots per day.", c.AutoBookingLimit), nil
		case "off":
			c.AutoBookingEnabled = false
			return "Auto-booking off. You will only get notifications.", nil
		case "limit":
			if len(args) != 2 {
				return "", fmt.Errorf("%s", usage)
			}
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return "", fmt.Errorf("limit must be a positive number")
			}
			c.AutoBookingLimit = n
			return fmt.Sprintf("Daily auto-booking limit set to %d.", n), nil
		default:
			return "", fmt.Errorf("%s", usage)
		}
	})
}

func (b *Bot) cmdNotifications(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		b.reply(msg.Chat.ID, "Usage: /notifications on | off")
		return
	}
	b.updateCriteria(ctx, msg, func(c *supply.Criteria) (string, error) {
		c.NotificationsEnabled = args[0] == "on"
		if c.NotificationsEnabled {
			return "New-slot notifications on.", nil
		}
		return "New-slot notifications off. Auto-booking keeps working if enabled.", nil
	})
}

func (b *Bot) cmdQuiet(ctx context.Context, msg *tgbotapi.Message, args []string) {
	usage := "Usage: /quiet <start hour> <end hour> (e.g. /quiet 22 8) or /quiet off"
	b.updateCriteria(ctx, msg, func(c *supply.Criteria) (string, error) {
		if len(args) == 1 && args[0] == "off" {
			c.QuietHoursStart, c.QuietHoursEnd = nil, nil
			return "Quiet hours removed.", nil
		}
		if len(args) != 2 {
			return "", fmt.Errorf("%s", usage)
		}
		start, err1 := strconv.Atoi(args[0])
		end, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil {
			return "", fmt.Errorf("%s", usage)
		}
		c.QuietHoursStart, c.QuietHoursEnd = &start, &end
		return fmt.Sprintf("Quiet hours %02d:00-%02d:00. No notifications in that window; auto-booking is unaffected.", start, end), nil
	})
}

func (b *Bot) cmdSearch(ctx context.Context, msg *tgbotapi.Message, args []string) {
	user, ok := b.mustUser(ctx, msg)
	if !ok {
		return
	}
	if len(args) != 2 {
		b.reply(msg.Chat.ID, "Usage: /search <account id> <supply number> (see /accounts)")
		return
	}
	accountID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.reply(msg.Chat.ID, "Account id must be a number.")
		return
	}
	if err := b.searches.Start(ctx, user.ID, accountID, args[1]); err != nil {
		b.reply(msg.Chat.ID, "Cannot start the search: "+err.Error())
	}
	// Start confirmation and progress come from the search manager itself.
}

func (b *Bot) cmdStopSearch(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.mustUser(ctx, msg)
	if !ok {
		return
	}
	if !b.searches.Stop(user.ID) {
		b.reply(msg.Chat.ID, "No search is running.")
	}
}

func (b *Bot) cmdStatus(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.mustUser(ctx, msg)
	if !ok {
		return
	}
	info, running := b.searches.SessionInfo(user.ID)
	if !running {
		b.reply(msg.Chat.ID, "No search is running. Monitoring of new slots is always on for active accounts.")
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf(
		"Searching for supply %s on account %q since %s.",
		info.SupplyNumber, info.AccountName, info.StartedAt.Format("02.01.2006 15:04")))
}

func (b *Bot) cmdHistory(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.mustUser(ctx, msg)
	if !ok {
		return
	}
	bookings, err := b.store.BookedSlots(ctx, user.ID, 10)
	if err != nil {
		b.log.WithError(err).Errorf("loading bookings for user %d", user.ID)
		b.reply(msg.Chat.ID, "Could not load your bookings, please try again.")
		return
	}
	if len(bookings) == 0 {
		b.reply(msg.Chat.ID, "No bookings yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Recent bookings:\n")
	for _, bk := range bookings {
		mode := "manual"
		if bk.AutoBooked {
			mode = "auto"
		}
		fmt.Fprintf(&sb, "%s %s %s x%.1f (%s, %s)",
			bk.SupplyDate.Format("02.01.2006"), bk.TimeSlot, bk.WarehouseName,
			bk.Coefficient, mode, bk.Status)
		if bk.SupplyNumber != nil {
			fmt.Fprintf(&sb, " supply %s", *bk.SupplyNumber)
		}
		sb.WriteString("\n")
	}
	b.reply(msg.Chat.ID, sb.String())
}

// mustUser resolves the sender to a registered user, prompting /start if they
// are unknown.
func (b *Bot) mustUser(ctx context.Context, msg *tgbotapi.Message) (storage.User, bool) {
	user, err := b.store.GetUserByTelegramID(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(msg.Chat.ID, "Please /start first.")
		} else {
			b.log.WithError(err).Errorf("resolving user %d", msg.From.ID)
			b.reply(msg.Chat.ID, "Something went wrong, please try again.")
		}
		return storage.User{}, false
	}
	return user, true
}
