package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stele/observability"
)

var (
	// ErrNoQuote indicates that no source could price the asset.
	ErrNoQuote = errors.New("oracle: no quote available")
	// ErrStaleQuote indicates that the freshest quote is outside the freshness window.
	ErrStaleQuote = errors.New("oracle: no fresh quote available")
	// ErrInvalidRate is returned for non-positive or unparsable rates.
	ErrInvalidRate = errors.New("oracle: invalid rate")
)

// Quote captures the value of one smallest unit of Asset expressed in smallest
// units of the base asset, along with when and where it was observed.
type Quote struct {
	Asset     common.Address
	Rate      *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote.
func (q Quote) Clone() Quote {
	clone := Quote{Asset: q.Asset, Timestamp: q.Timestamp, Source: q.Source}
	if q.Rate != nil {
		clone.Rate = new(big.Rat).Set(q.Rate)
	}
	return clone
}

// Source resolves the base-denominated rate of a single asset.
type Source interface {
	Rate(asset common.Address) (Quote, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(asset common.Address) (Quote, error)

// Rate implements Source.
func (f SourceFunc) Rate(asset common.Address) (Quote, error) { return f(asset) }

// PriceSheet is an in-memory source fed from a configuration file or manual
// overrides during incident response.
type PriceSheet struct {
	mu     sync.RWMutex
	quotes map[common.Address]Quote
}

// NewPriceSheet constructs an empty price sheet.
func NewPriceSheet() *PriceSheet {
	return &PriceSheet{quotes: make(map[common.Address]Quote)}
}

// Set stores the rate for asset observed at ts.
func (s *PriceSheet) Set(asset common.Address, rate *big.Rat, ts time.Time) error {
	if s == nil {
		return fmt.Errorf("price sheet not configured")
	}
	if rate == nil || rate.Sign() <= 0 {
		return ErrInvalidRate
	}
	s.mu.Lock()
	s.quotes[asset] = Quote{Asset: asset, Rate: new(big.Rat).Set(rate), Timestamp: ts, Source: "sheet"}
	s.mu.Unlock()
	return nil
}

// SetDecimal parses rate as a decimal or fraction ("2500", "0.5", "1/3").
func (s *PriceSheet) SetDecimal(asset common.Address, rate string, ts time.Time) error {
	trimmed := strings.TrimSpace(rate)
	if trimmed == "" {
		return fmt.Errorf("%w: rate required", ErrInvalidRate)
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRate, rate)
	}
	return s.Set(asset, rat, ts)
}

// Delete removes any stored rate for asset.
func (s *PriceSheet) Delete(asset common.Address) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.quotes, asset)
	s.mu.Unlock()
}

// Rate implements Source.
func (s *PriceSheet) Rate(asset common.Address) (Quote, error) {
	if s == nil {
		return Quote{}, fmt.Errorf("price sheet not configured")
	}
	s.mu.RLock()
	stored, ok := s.quotes[asset]
	s.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, asset.Hex())
	}
	return stored.Clone(), nil
}

// Assets lists every asset with a stored rate.
func (s *PriceSheet) Assets() []common.Address {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Address, 0, len(s.quotes))
	for asset := range s.quotes {
		out = append(out, asset)
	}
	return out
}

// Aggregator consults registered sources in priority order until a fresh
// quote is obtained.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	sources  map[string]Source
	maxAge   time.Duration
	nowFn    func() time.Time
}

// NewAggregator constructs an aggregator with the provided priority and
// freshness window. A zero maxAge disables the freshness check.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	prio := make([]string, 0, len(priority))
	for _, name := range priority {
		if trimmed := strings.ToLower(strings.TrimSpace(name)); trimmed != "" {
			prio = append(prio, trimmed)
		}
	}
	return &Aggregator{
		priority: prio,
		sources:  make(map[string]Source),
		maxAge:   maxAge,
		nowFn:    time.Now,
	}
}

// SetNowFunc overrides the clock used for freshness checks.
func (a *Aggregator) SetNowFunc(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.mu.Lock()
	a.nowFn = now
	a.mu.Unlock()
}

// SetMaxAge updates the freshness window.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// Register adds or replaces a source. Names are case-insensitive; unknown
// names are appended to the end of the priority list.
func (a *Aggregator) Register(name string, source Source) {
	if a == nil || source == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources[trimmed] = source
	for _, entry := range a.priority {
		if entry == trimmed {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// Rate implements Source.
func (a *Aggregator) Rate(asset common.Address) (Quote, error) {
	if a == nil {
		return Quote{}, fmt.Errorf("oracle aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	now := a.nowFn()
	a.mu.RUnlock()

	metrics := observability.Oracle()
	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		source := a.sources[name]
		a.mu.RUnlock()
		if source == nil {
			continue
		}
		quote, err := source.Rate(asset)
		if err != nil {
			metrics.RecordLookup(name, "missing")
			lastErr = err
			continue
		}
		if quote.Rate == nil || quote.Rate.Sign() <= 0 {
			metrics.RecordLookup(name, "invalid")
			lastErr = fmt.Errorf("%w: source %s", ErrInvalidRate, name)
			continue
		}
		if maxAge > 0 && quote.Timestamp.Before(now.Add(-maxAge)) {
			metrics.RecordLookup(name, "stale")
			lastErr = ErrStaleQuote
			continue
		}
		metrics.RecordLookup(name, "ok")
		if !quote.Timestamp.IsZero() {
			metrics.RecordAge(name, now.Sub(quote.Timestamp))
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = name
		}
		return result, nil
	}
	if lastErr == nil {
		lastErr = ErrNoQuote
	}
	return Quote{}, lastErr
}
