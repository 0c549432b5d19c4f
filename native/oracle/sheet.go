package oracle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// SheetFile is the YAML layout of a price sheet:
//
//	prices:
//	  - asset: "0x..."
//	    symbol: WETH
//	    rate: "2500"
//	    updatedAt: 2024-05-01T00:00:00Z
type SheetFile struct {
	Prices []SheetEntry `yaml:"prices"`
}

// SheetEntry is one asset row. Rate is denominated in smallest base units per
// smallest asset unit.
type SheetEntry struct {
	Asset     string    `yaml:"asset"`
	Symbol    string    `yaml:"symbol"`
	Rate      string    `yaml:"rate"`
	UpdatedAt time.Time `yaml:"updatedAt"`
}

// LoadPriceSheet reads a YAML price sheet from disk. Rows without an
// updatedAt timestamp are stamped with now.
func LoadPriceSheet(path string, now time.Time) (*PriceSheet, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("price sheet path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open price sheet: %w", err)
	}
	return ParsePriceSheet(data, now)
}

// ParsePriceSheet decodes a YAML price sheet.
func ParsePriceSheet(data []byte, now time.Time) (*PriceSheet, error) {
	var file SheetFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode price sheet: %w", err)
	}
	sheet := NewPriceSheet()
	for i, entry := range file.Prices {
		addr := strings.TrimSpace(entry.Asset)
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("prices[%d]: invalid asset address %q", i, entry.Asset)
		}
		ts := entry.UpdatedAt
		if ts.IsZero() {
			ts = now
		}
		if err := sheet.SetDecimal(common.HexToAddress(addr), entry.Rate, ts); err != nil {
			return nil, fmt.Errorf("prices[%d]: %w", i, err)
		}
	}
	return sheet, nil
}
