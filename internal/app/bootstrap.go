// Package app wires configuration, connectors, the engine and the report
// sinks into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ordex/internal/domain"
	"ordex/internal/engine"
	"ordex/internal/execution"
	"ordex/internal/infra"
	"ordex/internal/reports"
	"ordex/internal/storage"
	"ordex/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config    *infra.Config
	Logger    *slog.Logger
	Connector execution.Connector
	Manager   *engine.Manager
	Feed      *infra.TickerFeed
	Store     *storage.ReportStore
	Publisher *reports.Publisher
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the configuration and builds the engine stack.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping Ordex...")

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	b.Logger = infra.NewLogger(cfg.Logging.Level)
	infra.PrintBanner(cfg)

	throttle := infra.NewThrottle(cfg.Throttle.PeriodSec, cfg.Throttle.RequestsPerPeriod, nil)

	mode := strings.ToLower(cfg.Trading.Mode)
	switch mode {
	case infra.ModeLive:
		conn, err := execution.NewLiveConnector(cfg.API.RestURL, cfg.API.KeyName, cfg.API.PrivateKeyPEM, throttle, b.Logger)
		if err != nil {
			return fmt.Errorf("live connector: %w", err)
		}
		b.Connector = conn
	case infra.ModeSim:
		sim := execution.NewSimConnector()
		sim.UseLastTickers = true
		sim.Throttle = throttle
		b.Connector = sim
	default:
		return fmt.Errorf("unknown trading mode %q", cfg.Trading.Mode)
	}
	slog.Info("✅ Connector ready", "mode", mode)

	mgr, err := engine.NewManager(b.Connector, b.Logger, cfg.Engine.MaxOrderUpdateAttempts, cfg.Engine.MaxCancelAttempts)
	if err != nil {
		return err
	}
	mgr.RequestSleep = time.Duration(cfg.Engine.RequestSleepMS) * time.Millisecond
	mgr.RequestTrades = !cfg.Engine.SkipTradesRequests
	b.Manager = mgr

	if mode == infra.ModeLive && cfg.API.WSURL != "" {
		b.Feed = infra.NewTickerFeed(cfg.API.WSURL, cfg.API.Symbols)
	}

	if cfg.Reports.SQLitePath != "" {
		store, err := storage.NewReportStore(cfg.Reports.SQLitePath)
		if err != nil {
			return err
		}
		b.Store = store
		slog.Info("✅ ReportStore initialized (WAL-mode)", "path", cfg.Reports.SQLitePath)
	}

	if len(cfg.Reports.Kafka.Brokers) > 0 {
		b.Publisher = reports.NewPublisher(cfg.Reports.Kafka.Brokers, cfg.Reports.Kafka.Topic, b.Logger)
		slog.Info("✅ Kafka publisher ready", "topic", cfg.Reports.Kafka.Topic)
	}

	return nil
}

// CreateOrderFromConfig builds the configured conversion order and
// registers it with the engine.
func (b *Bootstrap) CreateOrderFromConfig() (*domain.ParentOrder, error) {
	oc := b.Config.Order

	var (
		order *domain.ParentOrder
		err   error
	)
	switch oc.Strategy {
	case "recovery":
		order, err = strategy.NewRecoveryOrder(
			oc.Symbol, oc.StartCurrency, oc.StartAmount, oc.DestCurrency,
			oc.DestAmount, oc.CancelThreshold, oc.MaxBestAmountUpd, oc.MaxOrderUpdates)
	case "fok":
		order, err = strategy.NewFOKOrderFromStartAmount(
			oc.Symbol, oc.StartCurrency, oc.StartAmount, oc.DestCurrency,
			oc.Price, oc.CancelThreshold, oc.MaxOrderUpdates, oc.TimeToCancelSec)
	case "fok_taker_threshold":
		side := domain.OrderSide(oc.StartCurrency, oc.DestCurrency, oc.Symbol)
		if side == "" {
			return nil, domain.ErrSymbolMismatch
		}
		amount := oc.StartAmount
		if side == domain.SideBuy && oc.Price > 0 {
			amount = oc.StartAmount / oc.Price
		}
		order, err = strategy.NewFOKTakerThresholdOrder(
			oc.Symbol, amount, oc.Price, side, oc.CancelThreshold,
			oc.MaxOrderUpdates, oc.TimeToCancelSec, oc.TakerThreshold, oc.ThresholdAfterUpd)
	default:
		return nil, fmt.Errorf("unknown order strategy %q", oc.Strategy)
	}
	if err != nil {
		return nil, err
	}

	b.Manager.AddOrder(order)
	b.Manager.SetOrderSupplementaryData(order, map[string]any{
		"source": "config",
		"mode":   b.Config.Trading.Mode,
	})
	return order, nil
}

// Run drives the engine until the context is cancelled or no open orders
// remain. Closed orders are reported to the configured sinks each tick.
func (b *Bootstrap) Run(ctx context.Context) error {
	if b.Feed != nil {
		b.Feed.Start(ctx)
		defer b.Feed.Stop()
	}

	interval := time.Duration(b.Config.Engine.TickIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.windDown(context.Background())
			return ctx.Err()
		case <-ticker.C:
		}

		if b.Feed != nil {
			b.Manager.DataForOrders["tickers"] = b.Feed.Snapshot()
		}

		if err := b.Manager.ProceedOrders(ctx); err != nil {
			return err
		}

		b.reportClosed(ctx)

		if !b.Manager.HaveOpenOrders() {
			slog.Info("All orders closed")
			return nil
		}
	}
}

// Close releases the report sinks.
func (b *Bootstrap) Close() {
	if b.Publisher != nil {
		if err := b.Publisher.Close(); err != nil {
			slog.Error("closing publisher", "err", err)
		}
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Error("closing store", "err", err)
		}
	}
}

// windDown force-closes all open orders and runs ticks until they are
// gone, so no exchange order is left dangling on shutdown.
func (b *Bootstrap) windDown(ctx context.Context) {
	open := b.Manager.OpenOrders()
	if len(open) == 0 {
		return
	}
	slog.Info("Winding down open orders", "count", len(open))

	for _, o := range open {
		o.ForceClose()
	}
	for i := 0; i < b.Config.Engine.MaxCancelAttempts && b.Manager.HaveOpenOrders(); i++ {
		if err := b.Manager.ProceedOrders(ctx); err != nil {
			slog.Error("wind down tick failed", "err", err)
			return
		}
		b.reportClosed(ctx)
	}
}

func (b *Bootstrap) reportClosed(ctx context.Context) {
	for _, o := range b.Manager.ClosedOrders() {
		supplementary := b.Manager.Supplementary[o.ID]
		report := reports.FromOrder(o, supplementary)
		legs := reports.FromLegs(o)

		if b.Store != nil {
			if err := b.Store.SaveOrder(ctx, report, legs); err != nil {
				slog.Error("saving order report", "order", o.ID, "err", err)
			}
		}
		if b.Publisher != nil {
			if err := b.Publisher.PublishOrder(ctx, o, supplementary); err != nil {
				slog.Error("publishing order report", "order", o.ID, "err", err)
			}
		}
	}
}
