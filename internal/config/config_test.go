package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"telegram-crypto-subscription/internal/domain/model"
)

const validYAML = `
database:
  url: postgres://localhost/test
redis:
  url: localhost:6379
chains:
  eth:
    rpc_url: https://rpc.example.org
    scan_url: https://scan.example.org/api
    deposit_address: "0xABCdef0000000000000000000000000000000000"
  sol:
    rpc_url: https://sol.example.org
    deposit_address: "SolDeposit1111"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML), false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	// defaults applied
	if cfg.Log.Level != "info" || cfg.Admin.Port != 8081 {
		t.Fatalf("defaults missing: %+v", cfg)
	}
	if cfg.Reconciler.Interval != 30*time.Second {
		t.Fatalf("reconciler interval default %v", cfg.Reconciler.Interval)
	}

	// hex deposit addresses are normalized, base58 ones are untouched
	eth, ok := cfg.Chain(model.CurrencyETH)
	if !ok || eth.DepositAddress != "0xabcdef0000000000000000000000000000000000" {
		t.Fatalf("eth deposit %q", eth.DepositAddress)
	}
	sol, ok := cfg.Chain(model.CurrencySOL)
	if !ok || sol.DepositAddress != "SolDeposit1111" {
		t.Fatalf("sol deposit %q", sol.DepositAddress)
	}

	if got := cfg.EnabledCurrencies(); len(got) != 2 {
		t.Fatalf("enabled currencies %v", got)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-wins/db")
	t.Setenv("BOT_TOKEN", "token-from-env")

	cfg, err := LoadConfig(writeConfig(t, validYAML+"\nbot:\n  enabled: true\n"), false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Database.URL != "postgres://env-wins/db" {
		t.Fatalf("database url %q", cfg.Database.URL)
	}
	if cfg.Bot.Token != "token-from-env" {
		t.Fatalf("bot token %q", cfg.Bot.Token)
	}
}

func TestLoadConfigRejectsBadSetups(t *testing.T) {
	t.Run("missing database url", func(t *testing.T) {
		body := `
redis:
  url: localhost:6379
chains:
  eth:
    rpc_url: https://rpc.example.org
    deposit_address: "0xabc"
`
		if _, err := LoadConfig(writeConfig(t, body), false); err == nil {
			t.Fatal("want validation error")
		}
	})

	t.Run("bot enabled without token", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		if _, err := LoadConfig(writeConfig(t, validYAML+"\nbot:\n  enabled: true\n"), false); err == nil {
			t.Fatal("want error for enabled bot with no token")
		}
	})

	t.Run("no usable chain", func(t *testing.T) {
		body := `
database:
  url: postgres://localhost/test
redis:
  url: localhost:6379
chains:
  eth:
    rpc_url: https://rpc.example.org
`
		if _, err := LoadConfig(writeConfig(t, body), false); err == nil {
			t.Fatal("chain without deposit address must not count as configured")
		}
	})
}
