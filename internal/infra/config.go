package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Trading modes.
const (
	ModeSim  = "sim"
	ModeLive = "live"
)

// Config holds the full application configuration. Sensitive values may be
// overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode string `yaml:"mode"` // "sim" or "live"
	} `yaml:"trading"`

	API struct {
		RestURL       string   `yaml:"rest_url"`
		WSURL         string   `yaml:"ws_url"`
		KeyName       string   `yaml:"key_name"`
		PrivateKeyPEM string   `yaml:"private_key_pem"`
		Symbols       []string `yaml:"symbols"`
	} `yaml:"api"`

	Engine struct {
		MaxOrderUpdateAttempts int  `yaml:"max_order_update_attempts"`
		MaxCancelAttempts      int  `yaml:"max_cancel_attempts"`
		RequestSleepMS         int  `yaml:"request_sleep_ms"`
		SkipTradesRequests     bool `yaml:"skip_trades_requests"`
		TickIntervalMS         int  `yaml:"tick_interval_ms"`
	} `yaml:"engine"`

	Throttle struct {
		PeriodSec         float64 `yaml:"period_sec"`
		RequestsPerPeriod int     `yaml:"requests_per_period"`
	} `yaml:"throttle"`

	Order struct {
		Strategy          string  `yaml:"strategy"`
		Symbol            string  `yaml:"symbol"`
		StartCurrency     string  `yaml:"start_currency"`
		StartAmount       float64 `yaml:"start_amount"`
		DestCurrency      string  `yaml:"dest_currency"`
		DestAmount        float64 `yaml:"dest_amount"`
		Price             float64 `yaml:"price"`
		CancelThreshold   float64 `yaml:"cancel_threshold"`
		MaxBestAmountUpd  int     `yaml:"max_best_amount_updates"`
		MaxOrderUpdates   int     `yaml:"max_order_updates"`
		TimeToCancelSec   float64 `yaml:"time_to_cancel_sec"`
		TakerThreshold    float64 `yaml:"taker_price_threshold"`
		ThresholdAfterUpd int     `yaml:"threshold_check_after_updates"`
	} `yaml:"order"`

	Reports struct {
		SQLitePath string `yaml:"sqlite_path"`
		Kafka      struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
	} `yaml:"reports"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Trading.Mode) {
	case ModeSim, ModeLive:
	default:
		return fmt.Errorf("unknown trading mode: %q", c.Trading.Mode)
	}

	if c.Trading.Mode == ModeLive {
		if !strings.HasPrefix(c.API.RestURL, "http://") && !strings.HasPrefix(c.API.RestURL, "https://") {
			return fmt.Errorf("invalid REST URL: %s", c.API.RestURL)
		}
		if c.API.WSURL != "" && !strings.HasPrefix(c.API.WSURL, "ws://") && !strings.HasPrefix(c.API.WSURL, "wss://") {
			return fmt.Errorf("invalid WS URL: %s", c.API.WSURL)
		}
		if c.API.KeyName == "" || c.API.PrivateKeyPEM == "" {
			return fmt.Errorf("live mode requires api key_name and private_key_pem")
		}
	}

	if c.Engine.MaxOrderUpdateAttempts <= 0 {
		return fmt.Errorf("max_order_update_attempts must be positive")
	}
	if c.Engine.MaxCancelAttempts <= 0 {
		return fmt.Errorf("max_cancel_attempts must be positive")
	}
	if c.Throttle.PeriodSec <= 0 {
		return fmt.Errorf("throttle period must be positive")
	}

	if c.Order.StartCurrency == "" || c.Order.DestCurrency == "" {
		return fmt.Errorf("order start and dest currencies are required")
	}
	if c.Order.StartAmount <= 0 {
		return fmt.Errorf("order start_amount must be positive")
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.MaxOrderUpdateAttempts == 0 {
		cfg.Engine.MaxOrderUpdateAttempts = 20
	}
	if cfg.Engine.MaxCancelAttempts == 0 {
		cfg.Engine.MaxCancelAttempts = 10
	}
	if cfg.Engine.TickIntervalMS == 0 {
		cfg.Engine.TickIntervalMS = 500
	}
	if cfg.Throttle.PeriodSec == 0 {
		cfg.Throttle.PeriodSec = 60
	}
	if cfg.Throttle.RequestsPerPeriod == 0 {
		cfg.Throttle.RequestsPerPeriod = 1200
	}
	if cfg.Order.Strategy == "" {
		cfg.Order.Strategy = "recovery"
	}
	if cfg.Order.MaxBestAmountUpd == 0 {
		cfg.Order.MaxBestAmountUpd = 50
	}
	if cfg.Order.MaxOrderUpdates == 0 {
		cfg.Order.MaxOrderUpdates = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// overrideWithEnv overrides sensitive values from environment variables.
// Environment variables take precedence over the config file.
func overrideWithEnv(cfg *Config) {
	if cfg.API.PrivateKeyPEM != "" {
		fmt.Println("⚠️  SECURITY WARNING: API private key found in config file.")
		fmt.Println("   Recommendation: use environment variables instead:")
		fmt.Println("   - ORDEX_API_KEY_NAME, ORDEX_API_PRIVATE_KEY")
	}

	if name := os.Getenv("ORDEX_API_KEY_NAME"); name != "" {
		cfg.API.KeyName = name
	}
	if key := os.Getenv("ORDEX_API_PRIVATE_KEY"); key != "" {
		cfg.API.PrivateKeyPEM = key
	}
	if mode := os.Getenv("ORDEX_TRADING_MODE"); mode != "" {
		cfg.Trading.Mode = mode
	}
}
