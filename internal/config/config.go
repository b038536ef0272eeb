package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"BinarySentinel/internal/model"
	"BinarySentinel/internal/pricing"
)

// Volatility sources for the live monitor.
const (
	VolatilityFixed    = "fixed"
	VolatilityRealized = "realized"
)

// Config holds all application configuration.
type Config struct {
	Pricing struct {
		DefaultVolatility float64 `yaml:"default_volatility"`
		Rate              float64 `yaml:"rate"`
		VolatilitySource  string  `yaml:"volatility_source"`
		RealizedWindow    int     `yaml:"realized_window"`
	} `yaml:"pricing"`
	Market struct {
		Symbol            string        `yaml:"symbol"`
		BinanceWSURL      string        `yaml:"binance_ws_url"`
		BinanceRESTURL    string        `yaml:"binance_rest_url"`
		PolymarketCLOBURL string        `yaml:"polymarket_clob_url"`
		PolymarketGamma   string        `yaml:"polymarket_gamma_url"`
		SlugKeywords      []string      `yaml:"slug_keywords"`
		Strike            float64       `yaml:"strike"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
		MaxReconnects     int           `yaml:"max_reconnects"`
	} `yaml:"market"`
	Schedule struct {
		TickCron     string `yaml:"tick_cron"`
		DiscoverCron string `yaml:"discover_cron"`
		SummaryCron  string `yaml:"summary_cron"`
	} `yaml:"schedule"`
	Risk struct {
		AlertScore  float64 `yaml:"alert_score"`
		AlertOnZone string  `yaml:"alert_on_zone"`
	} `yaml:"risk"`
	Position struct {
		StateFile string `yaml:"state_file"`
	} `yaml:"position"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
		// CSVDir, when set, also receives per-market daily sample CSVs for `pricer history`.
		CSVDir string `yaml:"csv_dir"`
	} `yaml:"database"`
	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides and defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	floats := []struct {
		key string
		dst *float64
	}{
		{"DEFAULT_VOLATILITY", &c.Pricing.DefaultVolatility},
		{"RISK_FREE_RATE", &c.Pricing.Rate},
		{"STRIKE", &c.Market.Strike},
		{"ALERT_SCORE", &c.Risk.AlertScore},
	}
	for _, f := range floats {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("env %s: %w", f.key, err)
		}
		*f.dst = parsed
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"VOLATILITY_SOURCE", &c.Pricing.VolatilitySource},
		{"SYMBOL", &c.Market.Symbol},
		{"TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken},
		{"TELEGRAM_CHAT_ID", &c.Telegram.ChatID},
		{"SQLITE_PATH", &c.Database.SQLitePath},
		{"CSV_DIR", &c.Database.CSVDir},
		{"LISTEN_ADDR", &c.Server.ListenAddr},
		{"LOG_LEVEL", &c.Log.Level},
		{"LOG_FORMAT", &c.Log.Format},
		{"CRON_TICK", &c.Schedule.TickCron},
		{"HTTPS_PROXY", &c.Proxy},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID != "" {
		c.Telegram.Enabled = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Pricing.DefaultVolatility == 0 {
		c.Pricing.DefaultVolatility = pricing.DefaultVolatility
	}
	if c.Pricing.VolatilitySource == "" {
		c.Pricing.VolatilitySource = VolatilityFixed
	}
	if c.Pricing.RealizedWindow == 0 {
		c.Pricing.RealizedWindow = 300
	}
	if c.Market.Symbol == "" {
		c.Market.Symbol = "BTCUSDT"
	}
	if c.Market.BinanceWSURL == "" {
		c.Market.BinanceWSURL = "wss://stream.binance.com:9443/ws/btcusdt@trade"
	}
	if c.Market.BinanceRESTURL == "" {
		c.Market.BinanceRESTURL = "https://api.binance.com"
	}
	if c.Market.PolymarketCLOBURL == "" {
		c.Market.PolymarketCLOBURL = "https://clob.polymarket.com"
	}
	if c.Market.PolymarketGamma == "" {
		c.Market.PolymarketGamma = "https://gamma-api.polymarket.com"
	}
	if len(c.Market.SlugKeywords) == 0 {
		c.Market.SlugKeywords = []string{"btc-updown", "15m"}
	}
	if c.Market.RequestsPerSecond == 0 {
		c.Market.RequestsPerSecond = 5
	}
	if c.Market.ReconnectDelay == 0 {
		c.Market.ReconnectDelay = 5 * time.Second
	}
	if c.Market.MaxReconnects == 0 {
		c.Market.MaxReconnects = 5
	}
	if c.Schedule.TickCron == "" {
		c.Schedule.TickCron = "*/1 * * * * *"
	}
	if c.Schedule.DiscoverCron == "" {
		c.Schedule.DiscoverCron = "0 * * * * *"
	}
	if c.Schedule.SummaryCron == "" {
		c.Schedule.SummaryCron = "0 0 * * * *"
	}
	if c.Risk.AlertScore == 0 {
		c.Risk.AlertScore = 70
	}
	if c.Risk.AlertOnZone == "" {
		c.Risk.AlertOnZone = string(model.ZoneGammaRisk)
	}
	if c.Position.StateFile == "" {
		c.Position.StateFile = "data/position_state.json"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/binary_sentinel.db"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// PricerSettings returns the pricing settings derived from the config.
func (c *Config) PricerSettings() pricing.Settings {
	return pricing.Settings{
		DefaultVolatility: c.Pricing.DefaultVolatility,
		DefaultRate:       c.Pricing.Rate,
	}
}

// Validate checks that all fields are usable.
func (c *Config) Validate() error {
	if c.Pricing.DefaultVolatility <= 0 {
		return errors.New("pricing.default_volatility must be positive")
	}
	switch c.Pricing.VolatilitySource {
	case VolatilityFixed, VolatilityRealized:
	default:
		return fmt.Errorf("pricing.volatility_source must be %q or %q, got %q",
			VolatilityFixed, VolatilityRealized, c.Pricing.VolatilitySource)
	}
	if c.Pricing.RealizedWindow < 3 {
		return errors.New("pricing.realized_window must be at least 3")
	}
	if c.Market.Strike < 0 {
		return errors.New("market.strike must not be negative")
	}
	if c.Risk.AlertScore < 0 || c.Risk.AlertScore > 100 {
		return errors.New("risk.alert_score must be within 0~100")
	}
	if !validZone(c.Risk.AlertOnZone) {
		return fmt.Errorf("risk.alert_on_zone: unknown zone %q", c.Risk.AlertOnZone)
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return errors.New("telegram.bot_token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}

func validZone(z string) bool {
	for _, known := range model.Zones {
		if string(known) == z {
			return true
		}
	}
	return false
}
