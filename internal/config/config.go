// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"telegram-crypto-subscription/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Enabled  bool    `yaml:"enabled"`
	Workers  int     `yaml:"workers"` // polling update workers
	AdminIDs []int64 `yaml:"admin_ids"`
}

type AdminConfig struct {
	Port          int           `yaml:"port"`
	APIKey        string        `yaml:"api_key"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url" validate:"required"`
}

type RedisConfig struct {
	URL      string `yaml:"url" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ChainConfig configures one currency's observer. A currency with no block
// here (or with required fields missing) is simply not served; the rest of
// the system keeps running.
type ChainConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	ScanURL        string        `yaml:"scan_url"` // explorer API base for account scans (ETH)
	APIKey         string        `yaml:"api_key"`
	DepositAddress string        `yaml:"deposit_address"`
	Confirmations  int           `yaml:"confirmations"` // override; 0 = currency default
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type PriceConfig struct {
	Source string            `yaml:"source"` // binance | static
	Static map[string]string `yaml:"static"` // currency -> USD price, for dev
	TTL    time.Duration     `yaml:"ttl"`    // quote cache TTL
}

type ReconcilerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	SweepTimeout time.Duration `yaml:"sweep_timeout"`
	Lookback     time.Duration `yaml:"lookback"`
	SweepLimit   int           `yaml:"sweep_limit"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
	VerifyLimit  int           `yaml:"verify_limit"`
	VerifyWindow time.Duration `yaml:"verify_window"`
}

type ExpiryConfig struct {
	Interval     time.Duration `yaml:"interval"`
	NotifyWithin time.Duration `yaml:"notify_within"`
}

type Config struct {
	Log        LogConfig              `yaml:"log"`
	Bot        BotConfig              `yaml:"bot"`
	Admin      AdminConfig            `yaml:"admin"`
	Database   DatabaseConfig         `yaml:"database"`
	Redis      RedisConfig            `yaml:"redis"`
	Chains     map[string]ChainConfig `yaml:"chains"`
	Price      PriceConfig            `yaml:"price"`
	Reconciler ReconcilerConfig       `yaml:"reconciler"`
	Expiry     ExpiryConfig           `yaml:"expiry"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, overlays secrets from the environment,
// applies defaults and validates. Call godotenv.Load before this when a
// .env file is in play.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if cfg.Bot.Enabled && cfg.Bot.Token == "" {
		return nil, errors.New("bot.token is required when bot.enabled")
	}
	if len(cfg.EnabledCurrencies()) == 0 {
		return nil, errors.New("no currency is fully configured under chains")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// applyEnv lets deployment secrets override the file, matching the original
// deployment's environment-variable layout.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Bot.Token = v
	}
	if v := os.Getenv("ADMIN_API_KEY"); v != "" {
		c.Admin.APIKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 4
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 8081
	}
	if c.Admin.SessionTTL <= 0 {
		c.Admin.SessionTTL = 30 * time.Minute
	}
	if c.Price.Source == "" {
		c.Price.Source = "binance"
	}
	if c.Price.TTL <= 0 {
		c.Price.TTL = 30 * time.Second
	}
	if c.Reconciler.Interval <= 0 {
		c.Reconciler.Interval = 30 * time.Second
	}
	if c.Reconciler.SweepTimeout <= 0 {
		c.Reconciler.SweepTimeout = 25 * time.Second
	}
	if c.Expiry.Interval <= 0 {
		c.Expiry.Interval = time.Hour
	}
	if c.Expiry.NotifyWithin <= 0 {
		c.Expiry.NotifyWithin = 48 * time.Hour
	}
	for name, ch := range c.Chains {
		if ch.RequestTimeout <= 0 {
			ch.RequestTimeout = 10 * time.Second
		}
		// hex addresses compare case-insensitively; normalize those once here.
		// base58 addresses (Solana) are case-sensitive and must pass through.
		ch.DepositAddress = strings.TrimSpace(ch.DepositAddress)
		if strings.HasPrefix(ch.DepositAddress, "0x") {
			ch.DepositAddress = strings.ToLower(ch.DepositAddress)
		}
		c.Chains[name] = ch
	}
}

// Chain returns the block for a currency, keyed case-insensitively.
func (c *Config) Chain(cur model.Currency) (ChainConfig, bool) {
	for name, ch := range c.Chains {
		if strings.EqualFold(name, string(cur)) {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// EnabledCurrencies lists the currencies whose chain block carries enough
// configuration to build an observer.
func (c *Config) EnabledCurrencies() []model.Currency {
	var out []model.Currency
	for _, cur := range model.AllCurrencies() {
		ch, ok := c.Chain(cur)
		if !ok {
			continue
		}
		if ch.RPCURL == "" || ch.DepositAddress == "" {
			continue
		}
		out = append(out, cur)
	}
	return out
}
