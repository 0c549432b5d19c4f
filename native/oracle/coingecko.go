package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultCoinGeckoEndpoint is the token price API for Ethereum mainnet
// contracts.
const DefaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/token_price/ethereum"

// CoinGeckoConfig configures the CoinGecko source.
type CoinGeckoConfig struct {
	Endpoint   string
	VsCurrency string
	// BaseDecimals is the precision of the base asset the quotes are
	// expressed in, e.g. 6 for USDC against "usd".
	BaseDecimals uint8

	// AssetDecimals lists the priced assets and their token precision.
	AssetDecimals map[common.Address]uint8
	CacheTTL      time.Duration
}

type cachedQuote struct {
	quote   Quote
	fetched time.Time
}

// CoinGecko prices ERC-20 assets through the CoinGecko token price API. The
// per-token price is rescaled into base smallest units per asset smallest
// unit.
type CoinGecko struct {
	client       HTTPDoer
	endpoint     string
	vsCurrency   string
	baseDecimals uint8
	decimals     map[common.Address]uint8
	cacheTTL     time.Duration
	nowFn        func() time.Time

	mu    sync.Mutex
	cache map[common.Address]cachedQuote
}

// NewCoinGecko constructs the source. A nil client falls back to
// http.DefaultClient.
func NewCoinGecko(client HTTPDoer, cfg CoinGeckoConfig) *CoinGecko {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultCoinGeckoEndpoint
	}
	vs := strings.ToLower(strings.TrimSpace(cfg.VsCurrency))
	if vs == "" {
		vs = "usd"
	}
	if client == nil {
		client = http.DefaultClient
	}
	decimals := make(map[common.Address]uint8, len(cfg.AssetDecimals))
	for asset, d := range cfg.AssetDecimals {
		decimals[asset] = d
	}
	return &CoinGecko{
		client:       client,
		endpoint:     endpoint,
		vsCurrency:   vs,
		baseDecimals: cfg.BaseDecimals,
		decimals:     decimals,
		cacheTTL:     cfg.CacheTTL,
		nowFn:        time.Now,
		cache:        make(map[common.Address]cachedQuote),
	}
}

// SetNowFunc overrides the clock used for caching and missing timestamps.
func (c *CoinGecko) SetNowFunc(now func() time.Time) {
	if c != nil && now != nil {
		c.nowFn = now
	}
}

// Rate implements Source.
func (c *CoinGecko) Rate(asset common.Address) (Quote, error) {
	if c == nil {
		return Quote{}, fmt.Errorf("coingecko oracle not configured")
	}
	assetDecimals, ok := c.decimals[asset]
	if !ok {
		return Quote{}, fmt.Errorf("%w: coingecko: unmapped asset %s", ErrNoQuote, asset.Hex())
	}
	now := c.nowFn()
	if c.cacheTTL > 0 {
		c.mu.Lock()
		cached, hit := c.cache[asset]
		c.mu.Unlock()
		if hit && now.Sub(cached.fetched) < c.cacheTTL {
			return cached.quote.Clone(), nil
		}
	}

	price, ts, err := c.fetch(asset)
	if err != nil {
		return Quote{}, err
	}
	if ts.IsZero() {
		ts = now.UTC()
	}
	scale := new(big.Rat).SetFrac(
		new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.baseDecimals)), nil),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(assetDecimals)), nil),
	)
	quote := Quote{Asset: asset, Rate: price.Mul(price, scale), Timestamp: ts, Source: "coingecko"}
	if c.cacheTTL > 0 {
		c.mu.Lock()
		c.cache[asset] = cachedQuote{quote: quote.Clone(), fetched: now}
		c.mu.Unlock()
	}
	return quote, nil
}

func (c *CoinGecko) fetch(asset common.Address) (*big.Rat, time.Time, error) {
	req, err := http.NewRequest(http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, time.Time{}, err
	}
	contract := strings.ToLower(asset.Hex())
	values := url.Values{}
	values.Set("contract_addresses", contract)
	values.Set("vs_currencies", c.vsCurrency)
	values.Set("include_last_updated_at", "true")
	req.URL.RawQuery = values.Encode()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("coingecko oracle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, time.Time{}, fmt.Errorf("coingecko oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]interface{}
	if err := decoder.Decode(&payload); err != nil {
		return nil, time.Time{}, fmt.Errorf("coingecko oracle: decode: %w", err)
	}
	var entry map[string]interface{}
	for key, value := range payload {
		if strings.EqualFold(key, contract) {
			entry = value
			break
		}
	}
	if entry == nil {
		return nil, time.Time{}, fmt.Errorf("%w: coingecko: quote missing for %s", ErrNoQuote, asset.Hex())
	}
	priceStr := strings.TrimSpace(numberString(entry[c.vsCurrency]))
	rat, ok := new(big.Rat).SetString(priceStr)
	if !ok || rat.Sign() <= 0 {
		return nil, time.Time{}, fmt.Errorf("%w: coingecko price %q", ErrInvalidRate, priceStr)
	}
	var ts time.Time
	if raw := strings.TrimSpace(numberString(entry["last_updated_at"])); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			ts = time.Unix(parsed, 0).UTC()
		}
	}
	return rat, ts, nil
}

func numberString(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case json.Number:
		return v.String()
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
