package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Requests RequestsConfig `yaml:"requests"`
	TopUp    TopUpConfig    `yaml:"topup"`
	Notify   NotifyConfig   `yaml:"notify"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LedgerConfig struct {
	RpcUrl         string `yaml:"rpc_url"`
	TokenAddress   string `yaml:"token_address"`
	TokenDecimals  int32  `yaml:"token_decimals"`
	Confirmations  uint64 `yaml:"confirmations"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c LedgerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type PricingConfig struct {
	// Exactly one of usd_per_token (static rate) or rate_url (external
	// price endpoint) must be set.
	USDPerToken    string `yaml:"usd_per_token"`
	RateURL        string `yaml:"rate_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// Parsed from USDPerToken during Validate.
	Rate decimal.Decimal `yaml:"-"`
}

func (c PricingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type RequestsConfig struct {
	ValidityWindowSeconds int    `yaml:"validity_window_seconds"`
	SweepIntervalSeconds  int    `yaml:"sweep_interval_seconds"`
	ChainScheme           string `yaml:"chain_scheme"`
}

func (c RequestsConfig) ValidityWindow() time.Duration {
	return time.Duration(c.ValidityWindowSeconds) * time.Second
}

func (c RequestsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

type TopUpConfig struct {
	RailURL        string `yaml:"rail_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c TopUpConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type NotifyConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c NotifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type DatabaseConfig struct {
	// Path to the sqlite file. Empty means in-memory only.
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func LoadConfig(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment overrides
	loadEnvVars(&cfg)

	// Fill defaults, then validate
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// loadEnvVars applies optional environment overrides. The RPC endpoint in
// particular often carries an API key and does not belong in the YAML file.
func loadEnvVars(cfg *Config) {
	if v := os.Getenv("PAYLINK_RPC_URL"); v != "" {
		cfg.Ledger.RpcUrl = v
	}
	if v := os.Getenv("PAYLINK_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PAYLINK_RAIL_URL"); v != "" {
		cfg.TopUp.RailURL = v
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Requests.ValidityWindowSeconds == 0 {
		cfg.Requests.ValidityWindowSeconds = 900 // 15 minutes
	}
	if cfg.Requests.SweepIntervalSeconds == 0 {
		cfg.Requests.SweepIntervalSeconds = 5
	}
	if cfg.Requests.ChainScheme == "" {
		cfg.Requests.ChainScheme = "ethereum"
	}
	if cfg.Ledger.Confirmations == 0 {
		cfg.Ledger.Confirmations = 1
	}
	if cfg.Ledger.TimeoutSeconds == 0 {
		cfg.Ledger.TimeoutSeconds = 30
	}
	if cfg.Pricing.TimeoutSeconds == 0 {
		cfg.Pricing.TimeoutSeconds = 10
	}
	if cfg.TopUp.TimeoutSeconds == 0 {
		cfg.TopUp.TimeoutSeconds = 30
	}
	if cfg.Notify.TimeoutSeconds == 0 {
		cfg.Notify.TimeoutSeconds = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func (cfg *Config) Validate() error {
	// Validate server config
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", cfg.Server.Port)
	}

	// Validate ledger config
	if cfg.Ledger.RpcUrl == "" {
		return fmt.Errorf("ledger rpc_url must be set")
	}
	if cfg.Ledger.TokenAddress == "" {
		return fmt.Errorf("ledger token_address must be set")
	}
	if cfg.Ledger.TokenDecimals < 0 {
		return fmt.Errorf("ledger token_decimals cannot be negative, got %d", cfg.Ledger.TokenDecimals)
	}

	// Validate pricing config
	if cfg.Pricing.USDPerToken == "" && cfg.Pricing.RateURL == "" {
		return fmt.Errorf("pricing requires usd_per_token or rate_url")
	}
	if cfg.Pricing.USDPerToken != "" && cfg.Pricing.RateURL != "" {
		return fmt.Errorf("pricing usd_per_token and rate_url are mutually exclusive")
	}
	if cfg.Pricing.USDPerToken != "" {
		parsed, err := decimal.NewFromString(cfg.Pricing.USDPerToken)
		if err != nil {
			return fmt.Errorf("invalid pricing usd_per_token %q: %w", cfg.Pricing.USDPerToken, err)
		}
		if parsed.Sign() <= 0 {
			return fmt.Errorf("pricing usd_per_token must be positive, got %s", parsed)
		}
		cfg.Pricing.Rate = parsed
	}

	// Validate request lifecycle config
	if cfg.Requests.ValidityWindowSeconds <= 0 {
		return fmt.Errorf("requests validity_window_seconds must be positive, got %d", cfg.Requests.ValidityWindowSeconds)
	}
	if cfg.Requests.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("requests sweep_interval_seconds must be positive, got %d", cfg.Requests.SweepIntervalSeconds)
	}

	// Validate log config
	validLogLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", cfg.Log.Level)
	}

	return nil
}
