/*
scheduler.go - Background compliance balance warmer

PURPOSE:
  Periodically materializes the compliance balance of every route for the
  route's own reporting year, so first reads from the API hit the stored
  value instead of running the intensity calculator.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Balances are stored once; re-runs only fill in what is missing
  - A failing route is logged and skipped, the pass continues
  - Each pass is counted in the warmer metrics

CONFIGURATION:
  - Interval: How often to run (default: 1 hour, warmer.interval)
  - Enabled: Whether the warmer is active (warmer.enabled)

USAGE:
  warmer := NewBalanceWarmer(handler.Catalog, handler.Engine, logger)
  warmer.Start()
  // ... later
  warmer.Stop()

SEE ALSO:
  - compliance/balance.go: GetComplianceBalance
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/compliance-engine/compliance"
)

// BalanceWarmer precomputes compliance balances on a ticker.
type BalanceWarmer struct {
	Catalog  *compliance.RouteCatalog
	Engine   *compliance.BalanceEngine
	Interval time.Duration
	Enabled  bool
	Logger   zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewBalanceWarmer creates a warmer with the default hourly interval.
func NewBalanceWarmer(catalog *compliance.RouteCatalog, engine *compliance.BalanceEngine, logger zerolog.Logger) *BalanceWarmer {
	return &BalanceWarmer{
		Catalog:  catalog,
		Engine:   engine,
		Interval: time.Hour,
		Enabled:  true,
		Logger:   logger.With().Str("component", "warmer").Logger(),
	}
}

// Start begins the warmer. Calling Start on a running warmer is a no-op.
func (bw *BalanceWarmer) Start() {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if !bw.Enabled {
		bw.Logger.Info().Msg("warmer disabled, not starting")
		return
	}
	if bw.ticker != nil {
		return
	}

	bw.ticker = time.NewTicker(bw.Interval)
	bw.stop = make(chan struct{})
	bw.wg.Add(1)

	go bw.run(bw.ticker, bw.stop)

	bw.Logger.Info().Dur("interval", bw.Interval).Msg("warmer started")
}

// Stop stops the warmer and waits for an in-flight pass.
func (bw *BalanceWarmer) Stop() {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.ticker == nil {
		return
	}
	bw.ticker.Stop()
	close(bw.stop)
	bw.wg.Wait()
	bw.ticker = nil
	bw.Logger.Info().Msg("warmer stopped")
}

func (bw *BalanceWarmer) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer bw.wg.Done()

	// Run immediately on start
	bw.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			bw.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one pass and reports how many balances were materialized.
// The error is the listing failure, if any; per-route failures are logged.
func (bw *BalanceWarmer) RunNow(ctx context.Context) (int, error) {
	routes, err := bw.Catalog.ListRoutes(ctx, compliance.RouteFilter{})
	if err != nil {
		bw.Logger.Error().Err(err).Msg("warmer could not list routes")
		ObserveWarmerRun(0, err)
		return 0, err
	}

	materialized, failed := 0, 0
	for _, route := range routes {
		if _, err := bw.Engine.GetComplianceBalance(ctx, route.ShipID(), route.Year); err != nil {
			failed++
			bw.Logger.Warn().
				Err(err).
				Str("ship_id", route.RouteID).
				Int("year", route.Year).
				Msg("warmer skipped route")
			continue
		}
		materialized++
	}

	ObserveWarmerRun(materialized, nil)
	bw.Logger.Debug().
		Int("routes", len(routes)).
		Int("materialized", materialized).
		Int("failed", failed).
		Msg("warmer pass complete")
	return materialized, nil
}
