package bot

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/example/wb-supply-bot/internal/booking"
	"github.com/example/wb-supply-bot/internal/config"
	"github.com/example/wb-supply-bot/internal/marketplace"
	"github.com/example/wb-supply-bot/internal/monitor"
	"github.com/example/wb-supply-bot/internal/search"
	"github.com/example/wb-supply-bot/internal/storage"
)

// Bot is the chat command layer. It translates Telegram updates into calls
// on the booking executor, the search manager, and the store; all slot logic
// lives below it.
type Bot struct {
	api      *tgbotapi.BotAPI
	store    *storage.Store
	executor *booking.Executor
	searches *search.Manager
	monitor  *monitor.Monitor
	cfg      config.Config
	client   func(apiKey string) *marketplace.Client
	log      *logrus.Entry

	mu    sync.Mutex
	convs map[int64]*conversation
}

// conversation tracks the add-account dialog per chat.
type conversation struct {
	step   string // "api_key" or "account_name"
	apiKey string
}

func New(api *tgbotapi.BotAPI, store *storage.Store, executor *booking.Executor, searches *search.Manager, mon *monitor.Monitor, cfg config.Config, client func(apiKey string) *marketplace.Client) *Bot {
	return &Bot{
		api:      api,
		store:    store,
		executor: executor,
		searches: searches,
		monitor:  mon,
		cfg:      cfg,
		client:   client,
		log:      logrus.WithField("component", "bot"),
		convs:    make(map[int64]*conversation),
	}
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	b.log.Infof("bot @%s accepting updates", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handle(ctx, update)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("update handler panicked: %v", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil:
		b.handleText(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	b.clearConversation(msg.Chat.ID)

	args := strings.Fields(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		b.cmdStart(ctx, msg)
	case "help":
		b.reply(msg.Chat.ID, helpText)
	case "accounts":
		b.cmdAccounts(ctx, msg)
	case "addaccount":
		b.cmdAddAccount(msg)
	case "delaccount":
		b.cmdDelAccount(ctx, msg, args)
	case "filters":
		b.cmdFilters(ctx, msg)
	case "setmin":
		b.cmdSetCoefficient(ctx, msg, args, false)
	case "setmax":
		b.cmdSetCoefficient(ctx, msg, args, true)
	case "warehouses":
		b.cmdWarehouses(ctx, msg, args)
	case "autobook":
		b.cmdAutoBook(ctx, msg, args)
	case "notifications":
		b.cmdNotifications(ctx, msg, args)
	case "quiet":
		b.cmdQuiet(ctx, msg, args)
	case "search":
		b.cmdSearch(ctx, msg, args)
	case "stopsearch":
		b.cmdStopSearch(ctx, msg)
	case "status":
		b.cmdStatus(ctx, msg)
	case "history":
		b.cmdHistory(ctx, msg)
	case "admin":
		b.cmdAdmin(ctx, msg)
	default:
		b.reply(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	switch {
	case strings.HasPrefix(data, "book:"):
		b.answer(cb.ID, "Booking...")
		slotID := strings.TrimPrefix(data, "book:")
		// Booking re-fetches slots per account; keep the update loop moving.
		go b.bookSlot(ctx, cb.From.ID, slotID)
	case strings.HasPrefix(data, "admin_"):
		b.handleAdminCallback(ctx, cb)
	default:
		b.answer(cb.ID, "")
	}
}

func (b *Bot) bookSlot(ctx context.Context, telegramID int64, slotID string) {
	user, err := b.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		b.log.WithError(err).Warnf("book callback from unknown user %d", telegramID)
		return
	}
	if _, err := b.executor.BookBySlotID(ctx, user.ID, slotID); err != nil {
		b.log.WithError(err).Errorf("booking slot %s for user %d", slotID, user.ID)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.WithError(err).Errorf("replying to %d", chatID)
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.WithError(err).Debug("answering callback")
	}
}

func (b *Bot) setConversation(chatID int64, c *conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.convs[chatID] = c
}

func (b *Bot) getConversation(chatID int64) *conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.convs[chatID]
}

func (b *Bot) clearConversation(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.convs, chatID)
}

const helpText = `Commands:
/accounts - list your marketplace accounts
/addaccount - connect a new account
/delaccount <id> - remove an account
/filters - show slot filters
/setmin <coefficient> - minimum coefficient
/setmax <coefficient|off> - maximum coefficient
/warehouses <id,id,...|all> - warehouse allow-list
/autobook <on|off|limit N> - automatic booking
/notifications <on|off> - new-slot notifications
/quiet <start> <end> | /quiet off - quiet hours
/search <account id> <supply number> - continuous slot search
/stopsearch - stop the running search
/status - search status
/history - recent bookings`
