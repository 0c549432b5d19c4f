package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stele/storage"
)

// Mainnet deployment defaults.
const (
	DefaultBaseAsset = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48" // USDC
	DefaultAdmin     = "0x1F55E11F7a39D3ca3Ea28109b35d173905Cd614e" // governance timelock
	DefaultVault     = "0x0000000000000000000000000000000000005e1e"
)

var defaultInvestable = []string{
	"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", // WETH
	"0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", // WBTC
	"0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984", // UNI
	"0x514910771AF9Ca656af840dff83E8264EcF986CA", // LINK
}

type Config struct {
	RPCAddress  string    `toml:"RPCAddress"`
	DataDir     string    `toml:"DataDir"`
	DBBackend   string    `toml:"DBBackend"`
	Environment string    `toml:"Environment"`
	LogLevel    string    `toml:"LogLevel"`
	Challenge   Challenge `toml:"Challenge"`
	Oracle      Oracle    `toml:"Oracle"`
	Auth        Auth      `toml:"Auth"`
	RateLimit   RateLimit `toml:"RateLimit"`
	Indexer     Indexer   `toml:"Indexer"`
	Redis       Redis     `toml:"Redis"`
	Telemetry   Telemetry `toml:"Telemetry"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a freshly written default configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		RPCAddress:  ":8545",
		DataDir:     "./stele-data",
		DBBackend:   storage.BackendLevelDB,
		Environment: "local",
		LogLevel:    "info",
		Challenge: Challenge{
			Admin:            DefaultAdmin,
			BaseAsset:        DefaultBaseAsset,
			Vault:            DefaultVault,
			EntryFee:         "10000000",
			SeedAmount:       "1000000000",
			InvestableAssets: append([]string{}, defaultInvestable...),
		},
		Oracle: Oracle{
			PricesFile:    "prices.yaml",
			MaxAgeSeconds: 0,
			Priority:      []string{"sheet", "coingecko"},
			CoinGecko: CoinGecko{
				VsCurrency:   "usd",
				BaseDecimals: 6,
				CacheSeconds: 30,
				AssetDecimals: map[string]uint8{
					"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2": 18,
					"0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599": 8,
					"0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984": 18,
					"0x514910771AF9Ca656af840dff83E8264EcF986CA": 18,
				},
			},
		},
		Auth: Auth{
			Issuer:           "stele",
			Audience:         "stele-rpc",
			ClockSkewSeconds: 30,
		},
		RateLimit: RateLimit{RequestsPerMinute: 600, Burst: 60},
		Redis:     Redis{Channel: "stele.events"},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
	}
}

func (c *Config) normalize() {
	c.RPCAddress = strings.TrimSpace(c.RPCAddress)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.DBBackend = strings.ToLower(strings.TrimSpace(c.DBBackend))
	c.Environment = strings.TrimSpace(c.Environment)
	c.Indexer.Driver = strings.ToLower(strings.TrimSpace(c.Indexer.Driver))
	if c.Challenge.InvestableAssets == nil {
		c.Challenge.InvestableAssets = []string{}
	}
	c.Oracle.CoinGecko.VsCurrency = strings.ToLower(strings.TrimSpace(c.Oracle.CoinGecko.VsCurrency))
	if c.Redis.Channel == "" {
		c.Redis.Channel = "stele.events"
	}
}

// PricesPath resolves the price sheet relative to the data directory.
func (c *Config) PricesPath() string {
	path := strings.TrimSpace(c.Oracle.PricesFile)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
