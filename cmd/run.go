package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/wb-supply-bot/internal/booking"
	"github.com/example/wb-supply-bot/internal/bot"
	"github.com/example/wb-supply-bot/internal/config"
	"github.com/example/wb-supply-bot/internal/crypto"
	"github.com/example/wb-supply-bot/internal/db"
	"github.com/example/wb-supply-bot/internal/logging"
	"github.com/example/wb-supply-bot/internal/marketplace"
	"github.com/example/wb-supply-bot/internal/metrics"
	"github.com/example/wb-supply-bot/internal/migrate"
	"github.com/example/wb-supply-bot/internal/monitor"
	"github.com/example/wb-supply-bot/internal/notify"
	"github.com/example/wb-supply-bot/internal/ops"
	"github.com/example/wb-supply-bot/internal/search"
	"github.com/example/wb-supply-bot/internal/storage"
)

func newRunCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot, the slot monitor, and the ops server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, cfg.LogFile)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			aead, err := crypto.New(cfg.CredEncKey)
			if err != nil {
				return fmt.Errorf("credential key: %w", err)
			}
			store := storage.New(d, aead)

			api, err := tgbotapi.NewBotAPI(cfg.BotToken)
			if err != nil {
				return fmt.Errorf("telegram: %w", err)
			}
			notifier := notify.NewTelegram(api)
			m := metrics.New()

			// Each client snapshots the admin switches at construction, so a
			// flipped switch reaches the monitor on its next tick.
			newClient := func(apiKey string) *marketplace.Client {
				state := cfg.Runtime.Snapshot()
				return marketplace.New(apiKey, marketplace.Options{
					BaseURL:           cfg.APIBaseURL,
					BackupURL:         cfg.APIBackupURL,
					Timeout:           cfg.APITimeout,
					ForceDemo:         state.ForceDemo,
					AllowDemoFallback: state.AllowDemoFallback,
					UseBackupURL:      state.UseBackupURL,
				})
			}
			factory := booking.ClientFactory(func(apiKey string) booking.SlotAPI {
				return newClient(apiKey)
			})

			executor := booking.NewExecutor(store, notifier, factory, cfg.HorizonDays, m)
			searches := search.NewManager(store, executor, notifier, cfg.SearchInterval, m)
			mon := monitor.New(store, executor, notifier, factory, cfg.MonitorInterval, cfg.HorizonDays, m)
			opsServer := ops.New(cfg.OpsAddr, d, mon, searches, m)

			mon.Start(ctx)
			opsServer.Start()

			b := bot.New(api, store, executor, searches, mon, cfg, newClient)
			b.Run(ctx) // blocks until signal

			logrus.Info("shutting down")
			searches.StopAll()
			mon.Stop()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return opsServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
