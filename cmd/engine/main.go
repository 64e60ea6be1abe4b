package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"order-engine/internal/core/cache"
	"order-engine/internal/core/clock"
	"order-engine/internal/core/config"
	"order-engine/internal/core/logger"
	cartadapter "order-engine/internal/features/cart/adapters"
	cartservice "order-engine/internal/features/cart/service"
	invports "order-engine/internal/features/inventory/ports"
	invservice "order-engine/internal/features/inventory/service"
	orderservice "order-engine/internal/features/orders/service"
	pricingservice "order-engine/internal/features/pricing/service"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	l := logger.Get()
	l.Info("Order engine starting",
		zap.String("environment", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
	)

	// Cart persistence over Redis.
	redisCache, err := cache.NewRedisAdapter(cfg.Redis.URL)
	if err != nil {
		l.Fatal("Failed to create Redis adapter", zap.Error(err))
	}
	defer redisCache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisCache.Ping(ctx); err != nil {
		l.Fatal("Redis health check failed", zap.Error(err))
	}
	l.Info("Redis connection verified")

	cartStore := cartadapter.NewRedisCartStore(
		redisCache,
		time.Duration(cfg.Redis.AnonymousCartTTLHours)*time.Hour,
	)

	// Inventory ledger.
	ledger := invservice.NewLedger(invservice.Config{
		EscalationThreshold: cfg.Inventory.RestockEscalationThreshold,
		ClassMultipliers: map[invports.StockClass]float64{
			invports.StockClassSeasonal:   cfg.Inventory.SeasonalStockMultiplier,
			invports.StockClassHighDemand: cfg.Inventory.HighDemandStockMultiplier,
			invports.StockClassPerishable: cfg.Inventory.PerishableStockMultiplier,
		},
	}, nil, nil, logger.Named("inventory"))

	// Pricing calculator.
	pricingCfg, err := pricingConfig(cfg.Pricing)
	if err != nil {
		l.Fatal("Invalid pricing configuration", zap.Error(err))
	}
	calculator := pricingservice.NewCalculator(pricingCfg)

	// Carts and the order lifecycle.
	eng := engine{
		Inventory: ledger,
		Pricing:   calculator,
		Carts:     cartservice.NewCartService(ledger, cartStore, clock.System{}, logger.Named("cart")),
		Orders: orderservice.NewLifecycle(
			orderservice.Config{
				ShippedCancelWindow: time.Duration(cfg.Orders.ShippedCancellationWindowHours) * time.Hour,
			},
			calculator, ledger, nil, nil, nil, clock.System{}, logger.Named("orders"),
		),
	}

	l.Info("Order engine ready",
		zap.Int("anon_cart_ttl_hours", cfg.Redis.AnonymousCartTTLHours),
		zap.Int("shipped_cancel_window_hours", cfg.Orders.ShippedCancellationWindowHours),
	)

	eng.wait(l)
}

// engine groups the assembled services. Transports embed these directly;
// the binary itself only holds them alive until shutdown.
type engine struct {
	Inventory *invservice.Ledger
	Pricing   *pricingservice.Calculator
	Carts     *cartservice.CartService
	Orders    *orderservice.Lifecycle
}

// wait blocks until the process receives an interrupt or termination signal.
func (e engine) wait(l *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	l.Info("Order engine shutting down", zap.String("signal", sig.String()))
}

// pricingConfig translates the raw config strings into decimal policy.
func pricingConfig(p config.PricingConfig) (pricingservice.Config, error) {
	flatTax, err := decimal.NewFromString(p.FlatTaxAmount)
	if err != nil {
		return pricingservice.Config{}, err
	}
	threshold, err := decimal.NewFromString(p.FreeShippingSubtotal)
	if err != nil {
		return pricingservice.Config{}, err
	}

	multipliers := make(map[string]decimal.Decimal)
	for region, rate := range config.SplitPairs(p.RegionTaxMultipliers) {
		d, err := decimal.NewFromString(rate)
		if err != nil {
			return pricingservice.Config{}, err
		}
		multipliers[region] = d
	}

	noTax := make(map[string]struct{})
	for _, region := range config.SplitList(p.NoSalesTaxRegions) {
		noTax[region] = struct{}{}
	}

	return pricingservice.Config{
		FlatTax:              flatTax,
		RegionMultipliers:    multipliers,
		NoSalesTaxRegions:    noTax,
		FreeShippingSubtotal: threshold,
		FreeShippingMinLines: p.FreeShippingMinLines,
	}, nil
}
