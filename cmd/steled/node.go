package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"stele/config"
	"stele/core/events"
	"stele/core/state"
	"stele/indexer"
	"stele/integrations/redispub"
	"stele/native/bank"
	"stele/native/challenge"
	"stele/native/oracle"
	"stele/observability"
	"stele/observability/logging"
	"stele/observability/metrics"
	"stele/rpc"
	"stele/rpc/middleware"
	"stele/storage"
)

const (
	priceSheetSource = "sheet"
	coinGeckoSource  = "coingecko"
)

// node owns every long-lived component of the daemon.
type node struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         storage.Database
	engine     *challenge.Engine
	ledger     *bank.Ledger
	aggregator *oracle.Aggregator
	events     *indexer.Store
	publisher  *redispub.Publisher
	server     *rpc.Server
}

func newNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (n *node, err error) {
	params, err := cfg.ChallengeParams()
	if err != nil {
		return nil, err
	}
	n = &node{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			n.close()
		}
	}()

	path := filepath.Join(cfg.DataDir, "state")
	if cfg.DBBackend == storage.BackendBolt {
		path = filepath.Join(cfg.DataDir, "state.bolt")
	}
	if cfg.DBBackend != storage.BackendMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	n.db, err = storage.Open(cfg.DBBackend, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("state database opened", slog.String("backend", cfg.DBBackend))
	manager := state.NewManager(n.db)

	n.aggregator = oracle.NewAggregator(cfg.Oracle.Priority, time.Duration(cfg.Oracle.MaxAgeSeconds)*time.Second)
	if err := n.reloadPrices(); err != nil {
		return nil, err
	}
	if err := n.registerCoinGecko(); err != nil {
		return nil, err
	}

	n.ledger = bank.NewLedger(manager, params.Vault)
	n.engine = challenge.NewEngine(manager, oracle.NewConverter(params.BaseAsset, n.aggregator))
	n.engine.SetTreasury(n.ledger)
	n.engine.SetLogger(logger.With(slog.String("component", "challenge")))
	n.engine.SetMetrics(metrics.Challenge())

	emitters := events.Fanout{observability.Events()}
	if cfg.Indexer.Driver != "" {
		db, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return nil, err
		}
		n.events, err = indexer.NewStore(db)
		if err != nil {
			return nil, err
		}
		n.events.SetLogger(logger.With(slog.String("component", "indexer")))
		emitters = append(emitters, n.events)
		logger.Info("event index enabled", slog.String("driver", cfg.Indexer.Driver), logging.MaskField("dsn", cfg.Indexer.DSN))
	}
	if cfg.Redis.Addr != "" {
		n.publisher, err = redispub.Dial(ctx, cfg.Redis.Addr,
			redispub.WithChannel(cfg.Redis.Channel),
			redispub.WithLogger(logger.With(slog.String("component", "redispub"))),
		)
		if err != nil {
			return nil, err
		}
		emitters = append(emitters, n.publisher)
		logger.Info("event publisher enabled", slog.String("channel", n.publisher.Channel()), logging.MaskField("redisAddr", cfg.Redis.Addr))
	}
	n.engine.SetEmitter(emitters)

	if err := n.bootstrap(ctx, params); err != nil {
		return nil, err
	}

	n.server, err = rpc.NewServer(n.engine, n.ledger, rpc.ServerConfig{
		ServiceName: "steled",
		Auth: middleware.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		},
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
			TrustedProxies:    append([]string(nil), cfg.RateLimit.TrustedProxies...),
		},
	}, logger.With(slog.String("component", "rpc")))
	if err != nil {
		return nil, err
	}
	if n.events != nil {
		n.server.SetEventStore(n.events)
	}
	if cfg.Auth.HMACSecret == "" {
		logger.Warn("rpc authentication disabled; mutating methods will be rejected")
	}
	return n, nil
}

// bootstrap writes the initial parameters on first start and lists the
// configured assets. Later starts keep the stored parameters.
func (n *node) bootstrap(ctx context.Context, params config.ChallengeParams) error {
	initial := challenge.DefaultParams(params.Admin, params.BaseAsset)
	initial.EntryFee = params.EntryFee
	initial.SeedAmount = params.SeedAmount
	if err := n.engine.Bootstrap(initial); err != nil {
		return fmt.Errorf("bootstrap engine: %w", err)
	}
	current, err := n.engine.Params()
	if err != nil {
		return err
	}
	if current.Admin != params.Admin {
		n.logger.Info("admin has moved since bootstrap; skipping asset listing", slog.String("admin", current.Admin.Hex()))
		return nil
	}
	auth := challenge.Authority{Caller: current.Admin}
	for _, asset := range params.InvestableAssets {
		if err := n.engine.SetInvestableAsset(ctx, auth, asset); err != nil {
			return fmt.Errorf("list asset %s: %w", asset.Hex(), err)
		}
	}
	return nil
}

// registerCoinGecko adds the remote token price source when enabled.
func (n *node) registerCoinGecko() error {
	decimals, err := n.cfg.CoinGeckoDecimals()
	if err != nil || decimals == nil {
		return err
	}
	cg := n.cfg.Oracle.CoinGecko
	source := oracle.NewCoinGecko(&http.Client{Timeout: 5 * time.Second}, oracle.CoinGeckoConfig{
		Endpoint:      cg.Endpoint,
		VsCurrency:    cg.VsCurrency,
		BaseDecimals:  cg.BaseDecimals,
		AssetDecimals: decimals,
		CacheTTL:      time.Duration(cg.CacheSeconds) * time.Second,
	})
	n.aggregator.Register(coinGeckoSource, source)
	n.logger.Info("coingecko price source enabled", slog.Int("assets", len(decimals)))
	return nil
}

// reloadPrices replaces the manual price sheet from disk. A missing file
// leaves the sheet source empty.
func (n *node) reloadPrices() error {
	path := n.cfg.PricesPath()
	if path == "" {
		return nil
	}
	sheet, err := oracle.LoadPriceSheet(path, time.Now())
	if errors.Is(err, os.ErrNotExist) {
		n.logger.Warn("price sheet not found", slog.String("path", path))
		n.aggregator.Register(priceSheetSource, oracle.NewPriceSheet())
		return nil
	}
	if err != nil {
		return fmt.Errorf("load price sheet: %w", err)
	}
	n.aggregator.Register(priceSheetSource, sheet)
	n.logger.Info("price sheet loaded", slog.String("path", path), slog.Int("assets", len(sheet.Assets())))
	return nil
}

func (n *node) close() {
	if n.publisher != nil {
		if err := n.publisher.Close(); err != nil {
			n.logger.Warn("close publisher", slog.Any("error", err))
		}
	}
	if n.events != nil {
		if err := n.events.Close(); err != nil {
			n.logger.Warn("close event index", slog.Any("error", err))
		}
	}
	if n.db != nil {
		n.db.Close()
	}
}
