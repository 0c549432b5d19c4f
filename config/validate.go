package config

import (
	"fmt"
	"math/big"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"stele/storage"
)

// ChallengeParams is the parsed form of the [Challenge] section.
type ChallengeParams struct {
	Admin            common.Address
	BaseAsset        common.Address
	Vault            common.Address
	EntryFee         *big.Int
	SeedAmount       *big.Int
	InvestableAssets []common.Address
}

// Validate checks that the configuration can start a node.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("DBBackend: unsupported backend %q", c.DBBackend)
	}
	if _, err := c.ChallengeParams(); err != nil {
		return err
	}
	switch c.Indexer.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("Indexer.Driver: unsupported driver %q", c.Indexer.Driver)
	}
	if c.Indexer.Driver != "" && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("Indexer.DSN required for driver %s", c.Indexer.Driver)
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RateLimit.Burst must be positive when a rate is set")
	}
	if _, err := c.CoinGeckoDecimals(); err != nil {
		return err
	}
	for i, proxy := range c.RateLimit.TrustedProxies {
		if net.ParseIP(strings.TrimSpace(proxy)) == nil {
			return fmt.Errorf("RateLimit.TrustedProxies[%d]: invalid IP %q", i, proxy)
		}
	}
	return nil
}

// CoinGeckoDecimals parses the [Oracle.CoinGecko] asset table. It returns nil
// when the source is disabled.
func (c *Config) CoinGeckoDecimals() (map[common.Address]uint8, error) {
	cg := c.Oracle.CoinGecko
	if !cg.Enabled {
		return nil, nil
	}
	if len(cg.AssetDecimals) == 0 {
		return nil, fmt.Errorf("Oracle.CoinGecko.AssetDecimals required when enabled")
	}
	out := make(map[common.Address]uint8, len(cg.AssetDecimals))
	for raw, decimals := range cg.AssetDecimals {
		addr, err := parseAddress("Oracle.CoinGecko.AssetDecimals", raw)
		if err != nil {
			return nil, err
		}
		if decimals > 36 {
			return nil, fmt.Errorf("Oracle.CoinGecko.AssetDecimals[%s]: %d decimals out of range", raw, decimals)
		}
		out[addr] = decimals
	}
	return out, nil
}

// ChallengeParams parses addresses and amounts from the [Challenge] section.
func (c *Config) ChallengeParams() (ChallengeParams, error) {
	var out ChallengeParams
	var err error
	if out.Admin, err = parseAddress("Challenge.Admin", c.Challenge.Admin); err != nil {
		return out, err
	}
	if out.BaseAsset, err = parseAddress("Challenge.BaseAsset", c.Challenge.BaseAsset); err != nil {
		return out, err
	}
	if out.Vault, err = parseAddress("Challenge.Vault", c.Challenge.Vault); err != nil {
		return out, err
	}
	if out.EntryFee, err = parsePositiveAmount("Challenge.EntryFee", c.Challenge.EntryFee); err != nil {
		return out, err
	}
	if out.SeedAmount, err = parsePositiveAmount("Challenge.SeedAmount", c.Challenge.SeedAmount); err != nil {
		return out, err
	}
	for i, raw := range c.Challenge.InvestableAssets {
		addr, err := parseAddress(fmt.Sprintf("Challenge.InvestableAssets[%d]", i), raw)
		if err != nil {
			return out, err
		}
		out.InvestableAssets = append(out.InvestableAssets, addr)
	}
	return out, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: zero address not allowed", field)
	}
	return addr, nil
}

func parsePositiveAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s: amount required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("%s: amount must be positive", field)
	}
	return value, nil
}
