package config

// Challenge holds the engine bootstrap values. Amounts are decimal strings in
// smallest base-asset units.
type Challenge struct {
	Admin            string   `toml:"Admin"`
	BaseAsset        string   `toml:"BaseAsset"`
	Vault            string   `toml:"Vault"`
	EntryFee         string   `toml:"EntryFee"`
	SeedAmount       string   `toml:"SeedAmount"`
	InvestableAssets []string `toml:"InvestableAssets"`
}

// Oracle configures price sources.
type Oracle struct {
	PricesFile    string    `toml:"PricesFile"`
	MaxAgeSeconds uint64    `toml:"MaxAgeSeconds"`
	Priority      []string  `toml:"Priority"`
	CoinGecko     CoinGecko `toml:"CoinGecko"`
}

// CoinGecko configures the remote token price source. AssetDecimals maps
// each priced asset address to its token precision.
type CoinGecko struct {
	Enabled       bool             `toml:"Enabled"`
	Endpoint      string           `toml:"Endpoint"`
	VsCurrency    string           `toml:"VsCurrency"`
	BaseDecimals  uint8            `toml:"BaseDecimals"`
	CacheSeconds  uint64           `toml:"CacheSeconds"`
	AssetDecimals map[string]uint8 `toml:"AssetDecimals"`
}

// Auth configures bearer-token verification on the RPC surface.
type Auth struct {
	HMACSecret       string `toml:"HMACSecret"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ClockSkewSeconds uint64 `toml:"ClockSkewSeconds"`
}

// RateLimit bounds per-client request rates.
type RateLimit struct {
	RequestsPerMinute uint32   `toml:"RequestsPerMinute"`
	Burst             int      `toml:"Burst"`
	TrustedProxies    []string `toml:"TrustedProxies"`
}

// Indexer selects the relational event store. An empty driver disables it.
type Indexer struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Redis configures event publication. An empty address disables it.
type Redis struct {
	Addr    string `toml:"Addr"`
	Channel string `toml:"Channel"`
}

// Telemetry configures OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}
