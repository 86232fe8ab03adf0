package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func validTestConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Ledger: LedgerConfig{
			RpcUrl:        "https://mainnet.base.org",
			TokenAddress:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			TokenDecimals: 6,
		},
		Pricing: PricingConfig{
			USDPerToken: "1.00",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidateConfig(t *testing.T) {
	cfg := validTestConfig()

	err := cfg.Validate()
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
	if !cfg.Pricing.Rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected usd_per_token to parse to 1, got %s", cfg.Pricing.Rate)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	cfg := validTestConfig()
	cfg.Server.Port = 0 // Invalid

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected error for invalid port, got nil")
	}
}

func TestValidateMissingRpcUrl(t *testing.T) {
	cfg := validTestConfig()
	cfg.Ledger.RpcUrl = "" // Missing

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected error for missing rpc_url, got nil")
	}
}

func TestValidateMissingTokenAddress(t *testing.T) {
	cfg := validTestConfig()
	cfg.Ledger.TokenAddress = "" // Missing

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected error for missing token_address, got nil")
	}
}

func TestValidateNoPricingSource(t *testing.T) {
	cfg := validTestConfig()
	cfg.Pricing.USDPerToken = ""
	cfg.Pricing.RateURL = ""

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected error for missing pricing source, got nil")
	}
}

func TestValidateBothPricingSources(t *testing.T) {
	cfg := validTestConfig()
	cfg.Pricing.USDPerToken = "1.00"
	cfg.Pricing.RateURL = "https://rates.example.com/usdc"

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected error for mutually exclusive pricing sources, got nil")
	}
}

func TestValidateNonPositiveRate(t *testing.T) {
	cfg := validTestConfig()
	cfg.Pricing.USDPerToken = "0"

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected error for non-positive usd_per_token, got nil")
	}
}

func TestValidateMalformedRate(t *testing.T) {
	cfg := validTestConfig()
	cfg.Pricing.USDPerToken = "one dollar"

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected error for malformed usd_per_token, got nil")
	}
}

func TestValidateInvalidValidityWindow(t *testing.T) {
	cfg := validTestConfig()
	cfg.Requests.ValidityWindowSeconds = -1

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected error for negative validity window, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	cfg := validTestConfig()
	cfg.Log.Level = "invalid"

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected error for invalid log level, got nil")
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
server:
  host: "localhost"
  port: 9090
ledger:
  rpc_url: "https://mainnet.base.org"
  token_address: "0xToken"
  token_decimals: 6
pricing:
  usd_per_token: "0.25"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Requests.ValidityWindowSeconds != 900 {
		t.Errorf("Expected default validity window 900, got %d", cfg.Requests.ValidityWindowSeconds)
	}
	if cfg.Requests.SweepIntervalSeconds != 5 {
		t.Errorf("Expected default sweep interval 5, got %d", cfg.Requests.SweepIntervalSeconds)
	}
	if cfg.Requests.ChainScheme != "ethereum" {
		t.Errorf("Expected default chain scheme ethereum, got %s", cfg.Requests.ChainScheme)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Pricing.Rate.String() != "0.25" {
		t.Errorf("Expected parsed rate 0.25, got %s", cfg.Pricing.Rate)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeTestConfig(t, `
server:
  host: "localhost"
  port: 9090
ledger:
  rpc_url: "https://file.example.com"
  token_address: "0xToken"
pricing:
  usd_per_token: "1"
`)

	t.Setenv("PAYLINK_RPC_URL", "https://env.example.com")
	t.Setenv("PAYLINK_DB_PATH", "/tmp/env.db")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Ledger.RpcUrl != "https://env.example.com" {
		t.Errorf("Expected env rpc_url override, got %s", cfg.Ledger.RpcUrl)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Expected env db path override, got %s", cfg.Database.Path)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := writeTestConfig(t, "server: [not a map")

	_, err := LoadConfig(path)
	if err == nil {
		t.Error("Expected error for malformed YAML, got nil")
	}
}

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}
