package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BotToken    string
	DatabaseURL string
	OpsAddr     string

	// Credential-at-rest encryption key, 32 bytes for AES-256-GCM.
	CredEncKey []byte

	MonitorInterval    time.Duration
	SearchInterval     time.Duration
	HorizonDays        int
	MaxAccountsPerUser int

	APIBaseURL   string
	APIBackupURL string
	APITimeout   time.Duration

	AdminIDs []int64

	LogLevel string
	LogFile  string

	// Mutable demo-mode switches, shared with the admin panel.
	Runtime *Runtime
}

func FromEnv() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		BotToken:     strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		OpsAddr:      getenv("OPS_ADDR", ":8080"),
		APIBaseURL:   getenv("WB_API_BASE_URL", "https://supplies-api.wildberries.ru"),
		APIBackupURL: getenv("WB_API_BACKUP_URL", "https://suppliers-api.wildberries.ru"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFile:      os.Getenv("LOG_FILE"),
	}
	if cfg.BotToken == "" {
		return Config{}, fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	var err error
	if cfg.MonitorInterval, err = getseconds("MONITOR_INTERVAL_SECONDS", 5); err != nil {
		return Config{}, err
	}
	if cfg.SearchInterval, err = getseconds("SEARCH_INTERVAL_SECONDS", 30); err != nil {
		return Config{}, err
	}
	if cfg.APITimeout, err = getseconds("WB_API_TIMEOUT_SECONDS", 30); err != nil {
		return Config{}, err
	}
	if cfg.HorizonDays, err = getint("WB_API_HORIZON_DAYS", 14); err != nil {
		return Config{}, err
	}
	if cfg.MaxAccountsPerUser, err = getint("MAX_ACCOUNTS_PER_USER", 5); err != nil {
		return Config{}, err
	}

	cfg.CredEncKey, err = mustB64("CRED_ENC_KEY")
	if err != nil {
		return Config{}, err
	}
	if len(cfg.CredEncKey) != 32 {
		return Config{}, fmt.Errorf("CRED_ENC_KEY must decode to 32 bytes (got %d)", len(cfg.CredEncKey))
	}

	cfg.AdminIDs, err = getids("ADMIN_IDS")
	if err != nil {
		return Config{}, err
	}

	cfg.Runtime = NewRuntime(
		getenv("WB_API_FORCE_DEMO", "0") == "1",
		getenv("WB_API_ALLOW_DEMO_FALLBACK", "1") == "1",
	)
	return cfg, nil
}

func (c Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func getint(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s", k)
	}
	return n, nil
}

func getseconds(k string, def int) (time.Duration, error) {
	n, err := getint(k, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func getids(k string) ([]int64, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil, nil
	}
	var out []int64
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q", k, p)
		}
		out = append(out, id)
	}
	return out, nil
}

func mustB64(k string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil, fmt.Errorf("%s is required (base64)", k)
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
