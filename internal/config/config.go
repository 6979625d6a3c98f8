// Package config loads service configuration from a YAML file with
// environment-variable overrides for secrets and deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	ProviderAlpaca    = "alpaca"
	ProviderSimulator = "simulator"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Broker        BrokerConfig        `yaml:"broker"`
	Orders        OrdersConfig        `yaml:"orders"`
	Database      DatabaseConfig      `yaml:"database"`
	MarketData    MarketDataConfig    `yaml:"market_data"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	News          NewsConfig          `yaml:"news"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AuthConfig struct {
	APIKey        string `yaml:"api_key"`
	APISecret     string `yaml:"api_secret"`
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

type BrokerConfig struct {
	Provider        string `yaml:"provider"`
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	DataURL         string `yaml:"data_url"`
	TradingPassword string `yaml:"trading_password"`
}

type OrdersConfig struct {
	StoragePath          string `yaml:"storage_path"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
	ExternalTimeoutSecs  int    `yaml:"external_timeout_seconds"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type MarketDataConfig struct {
	CacheTTLSeconds   int `yaml:"cache_ttl_seconds"`
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type NotificationsConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Topic   string `yaml:"topic"`
}

type AlertsConfig struct {
	Enabled bool        `yaml:"enabled"`
	Tasks   []AlertTask `yaml:"tasks"`
}

// AlertTask describes one periodic probe. Type selects the data source:
// usd_sgd, usd_btc or stock_price (which requires Symbol).
type AlertTask struct {
	ID              string  `yaml:"id"`
	Name            string  `yaml:"name"`
	Type            string  `yaml:"type"`
	Symbol          string  `yaml:"symbol"`
	Threshold       float64 `yaml:"threshold"`
	Direction       string  `yaml:"direction"`
	IntervalMinutes int     `yaml:"interval_minutes"`
	Message         string  `yaml:"message"`
}

type NewsConfig struct {
	Enabled              bool              `yaml:"enabled"`
	RefreshIntervalHours int               `yaml:"refresh_interval_hours"`
	Feeds                map[string]string `yaml:"feeds"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Auth: AuthConfig{
			JWTSecret:     "tradewatch-secret-key",
			TokenTTLHours: 24,
		},
		Broker: BrokerConfig{
			Provider: ProviderSimulator,
		},
		Orders: OrdersConfig{
			StoragePath:          "data/orders.json",
			CheckIntervalSeconds: 15,
			ExternalTimeoutSecs:  60,
		},
		Database: DatabaseConfig{
			Path: "tradewatch.db",
		},
		MarketData: MarketDataConfig{
			CacheTTLSeconds:   10,
			RequestsPerMinute: 60,
		},
		Notifications: NotificationsConfig{
			BaseURL: "https://ntfy.sh",
		},
		Alerts: AlertsConfig{
			Tasks: defaultAlertTasks(),
		},
		News: NewsConfig{
			RefreshIntervalHours: 6,
			Feeds:                DefaultNewsFeeds(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

func defaultAlertTasks() []AlertTask {
	return []AlertTask{
		{
			ID:              "usd_sgd_rate",
			Name:            "USD to SGD exchange rate is above 1.35",
			Type:            "usd_sgd",
			Threshold:       1.35,
			Direction:       "above",
			IntervalMinutes: 60,
			Message:         "USD to SGD exchange rate:",
		},
		{
			ID:              "usd_btc_rate",
			Name:            "USD to bitcoin exchange rate is above 120000",
			Type:            "usd_btc",
			Threshold:       120000,
			Direction:       "above",
			IntervalMinutes: 60,
			Message:         "USD to bitcoin exchange rate:",
		},
		{
			ID:              "asts_price",
			Name:            "ASTS less than $46",
			Type:            "stock_price",
			Symbol:          "US.ASTS",
			Threshold:       46,
			Direction:       "below",
			IntervalMinutes: 60,
			Message:         "ASTS price:",
		},
	}
}

// DefaultNewsFeeds returns the built-in RSS feed map.
func DefaultNewsFeeds() map[string]string {
	return map[string]string{
		"yahoo_finance":    "https://finance.yahoo.com/news/rssindex",
		"marketwatch":      "https://feeds.content.dowjones.io/public/rss/mw_topstories",
		"reuters_business": "https://feeds.reuters.com/reuters/businessNews",
		"seeking_alpha":    "https://seekingalpha.com/market_currents.xml",
		"benzinga":         "https://www.benzinga.com/feed",
		"zacks":            "https://scr.zacks.com/rss/rss.aspx",
		"finviz":           "https://finviz.com/news.ashx?v=3",
		"cnbc":             "https://search.cnbc.com/rs/search/combinedcms/view.xml?partnerId=wrss01&id=10001147",
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADEWATCH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TRADEWATCH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("TRADEWATCH_API_SECRET"); v != "" {
		cfg.Auth.APISecret = v
	}
	if v := os.Getenv("TRADEWATCH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TRADEWATCH_BROKER_PROVIDER"); v != "" {
		cfg.Broker.Provider = v
	}
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Broker.APISecret = v
	}
	if v := os.Getenv("TRADEWATCH_TRADING_PASSWORD"); v != "" {
		cfg.Broker.TradingPassword = v
	}
	if v := os.Getenv("TRADEWATCH_ORDERS_PATH"); v != "" {
		cfg.Orders.StoragePath = v
	}
	if v := os.Getenv("TRADEWATCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NTFY_SH_TOPIC"); v != "" {
		cfg.Notifications.Topic = v
	}
	if v := os.Getenv("TRADEWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Broker.Provider {
	case ProviderAlpaca, ProviderSimulator:
	default:
		return fmt.Errorf("unknown broker provider: %q", c.Broker.Provider)
	}
	if c.Broker.Provider == ProviderAlpaca && (c.Broker.APIKey == "" || c.Broker.APISecret == "") {
		return fmt.Errorf("broker provider %s requires api_key and api_secret", ProviderAlpaca)
	}
	if c.Orders.StoragePath == "" {
		return fmt.Errorf("orders storage_path must be set")
	}
	if c.Orders.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("orders check_interval_seconds must be positive, got %d", c.Orders.CheckIntervalSeconds)
	}
	if c.Orders.ExternalTimeoutSecs <= 0 {
		return fmt.Errorf("orders external_timeout_seconds must be positive, got %d", c.Orders.ExternalTimeoutSecs)
	}
	if c.MarketData.RequestsPerMinute <= 0 {
		return fmt.Errorf("market_data requests_per_minute must be positive, got %d", c.MarketData.RequestsPerMinute)
	}
	if c.Notifications.Enabled && c.Notifications.Topic == "" {
		return fmt.Errorf("notifications enabled but no topic configured")
	}
	for _, task := range c.Alerts.Tasks {
		if task.ID == "" {
			return fmt.Errorf("alert task with empty id")
		}
		switch task.Type {
		case "usd_sgd", "usd_btc":
		case "stock_price":
			if task.Symbol == "" {
				return fmt.Errorf("alert task %s: stock_price requires a symbol", task.ID)
			}
		default:
			return fmt.Errorf("alert task %s: unknown type %q", task.ID, task.Type)
		}
		switch task.Direction {
		case "above", "below":
		default:
			return fmt.Errorf("alert task %s: direction must be above or below, got %q", task.ID, task.Direction)
		}
		if task.IntervalMinutes <= 0 {
			return fmt.Errorf("alert task %s: interval_minutes must be positive", task.ID)
		}
	}
	return nil
}
