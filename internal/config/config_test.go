package config

import (
	"encoding/base64"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("DATABASE_URL", "postgres://localhost/wbbot")
	t.Setenv("CRED_ENC_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.MonitorInterval != 5*time.Second {
		t.Fatalf("monitor interval = %s", cfg.MonitorInterval)
	}
	if cfg.SearchInterval != 30*time.Second {
		t.Fatalf("search interval = %s", cfg.SearchInterval)
	}
	if cfg.HorizonDays != 14 {
		t.Fatalf("horizon = %d", cfg.HorizonDays)
	}
	if cfg.MaxAccountsPerUser != 5 {
		t.Fatalf("max accounts = %d", cfg.MaxAccountsPerUser)
	}
	if cfg.OpsAddr != ":8080" {
		t.Fatalf("ops addr = %s", cfg.OpsAddr)
	}

	state := cfg.Runtime.Snapshot()
	if state.ForceDemo {
		t.Fatal("force demo must default off")
	}
	if !state.AllowDemoFallback {
		t.Fatal("demo fallback must default on")
	}
}

func TestFromEnvRequiredVars(t *testing.T) {
	setRequired(t)
	t.Setenv("BOT_TOKEN", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error without BOT_TOKEN")
	}

	setRequired(t)
	t.Setenv("CRED_ENC_KEY", base64.StdEncoding.EncodeToString(make([]byte, 16)))
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for a 16-byte credential key")
	}
}

func TestAdminIDs(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_IDS", "100, 200,300")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(cfg.AdminIDs) != 3 {
		t.Fatalf("admin ids = %v", cfg.AdminIDs)
	}
	if !cfg.IsAdmin(200) || cfg.IsAdmin(999) {
		t.Fatal("IsAdmin mismatch")
	}

	setRequired(t)
	t.Setenv("ADMIN_IDS", "not-a-number")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for a malformed ADMIN_IDS")
	}
}

func TestRuntimeToggles(t *testing.T) {
	r := NewRuntime(false, true)

	if on := r.ToggleForceDemo(); !on {
		t.Fatal("first toggle must enable force demo")
	}
	if on := r.ToggleDemoFallback(); on {
		t.Fatal("first toggle must disable fallback")
	}
	r.SetUseBackupURL(true)

	s := r.Snapshot()
	if !s.ForceDemo || s.AllowDemoFallback || !s.UseBackupURL {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}
