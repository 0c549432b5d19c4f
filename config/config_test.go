package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8545" || cfg.DBBackend != "leveldb" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config persisted: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	params, err := reloaded.ChallengeParams()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.BaseAsset != common.HexToAddress(DefaultBaseAsset) {
		t.Fatalf("unexpected base asset %s", params.BaseAsset.Hex())
	}
	if params.EntryFee.String() != "10000000" || params.SeedAmount.String() != "1000000000" {
		t.Fatalf("unexpected amounts fee=%s seed=%s", params.EntryFee, params.SeedAmount)
	}
	if len(params.InvestableAssets) != 4 {
		t.Fatalf("expected 4 default investable assets, got %d", len(params.InvestableAssets))
	}
	reloaded.Oracle.CoinGecko.Enabled = true
	decimals, err := reloaded.CoinGeckoDecimals()
	if err != nil {
		t.Fatalf("coingecko decimals: %v", err)
	}
	if decimals[common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")] != 8 || len(decimals) != 4 {
		t.Fatalf("unexpected coingecko decimals %v", decimals)
	}
}

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = "127.0.0.1:9000"
DataDir = "/var/lib/stele"
DBBackend = "Bolt"
Environment = "staging"

[Challenge]
Admin = "0x00000000000000000000000000000000000000ad"
BaseAsset = "0x00000000000000000000000000000000000000b0"
Vault = "0x00000000000000000000000000000000000000f0"
EntryFee = "5"
SeedAmount = "500"
InvestableAssets = ["0x00000000000000000000000000000000000000e1"]

[Oracle]
PricesFile = "sheet.yaml"
MaxAgeSeconds = 300

[Auth]
HMACSecret = "s3cret"

[RateLimit]
RequestsPerMinute = 60
Burst = 5
TrustedProxies = ["10.0.0.1"]

[Indexer]
Driver = "sqlite"
DSN = "file::memory:"

[Redis]
Addr = "127.0.0.1:6379"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBBackend != "bolt" || cfg.Environment != "staging" {
		t.Fatalf("unexpected top-level values: %+v", cfg)
	}
	if cfg.PricesPath() != filepath.Join("/var/lib/stele", "sheet.yaml") {
		t.Fatalf("unexpected prices path %s", cfg.PricesPath())
	}
	if cfg.Oracle.MaxAgeSeconds != 300 || cfg.Auth.HMACSecret != "s3cret" || cfg.Auth.Issuer != "stele" {
		t.Fatalf("unexpected oracle/auth values: %+v %+v", cfg.Oracle, cfg.Auth)
	}
	if len(cfg.RateLimit.TrustedProxies) != 1 || cfg.RateLimit.TrustedProxies[0] != "10.0.0.1" {
		t.Fatalf("unexpected trusted proxies %v", cfg.RateLimit.TrustedProxies)
	}
	if cfg.Redis.Channel != "stele.events" {
		t.Fatalf("expected default channel, got %q", cfg.Redis.Channel)
	}
	params, err := cfg.ChallengeParams()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.EntryFee.Int64() != 5 || len(params.InvestableAssets) != 1 {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"Challenge.Admin":     func(c *Config) { c.Challenge.Admin = "not-an-address" },
		"Challenge.EntryFee":  func(c *Config) { c.Challenge.EntryFee = "0" },
		"Challenge.Vault":     func(c *Config) { c.Challenge.Vault = "0x0000000000000000000000000000000000000000" },
		"DBBackend":           func(c *Config) { c.DBBackend = "rocksdb" },
		"Indexer.DSN":         func(c *Config) { c.Indexer.Driver = "postgres" },
		"RateLimit.Burst":     func(c *Config) { c.RateLimit.Burst = 0 },
		"TrustedProxies[0]":   func(c *Config) { c.RateLimit.TrustedProxies = []string{"proxy.local"} },
		"InvestableAssets[0]": func(c *Config) { c.Challenge.InvestableAssets = []string{"0x12"} },
	}
	for field, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), field) {
			t.Fatalf("%s: expected validation error, got %v", field, err)
		}
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("ValidatorKey = \"abc\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestValidateRejectsBadCoinGeckoAssets(t *testing.T) {
	cfg := Default()
	cfg.Oracle.CoinGecko.AssetDecimals = map[string]uint8{"0x12": 18}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled source should not be validated: %v", err)
	}
	cfg.Oracle.CoinGecko.Enabled = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "Oracle.CoinGecko.AssetDecimals") {
		t.Fatalf("expected asset table error, got %v", err)
	}
}
