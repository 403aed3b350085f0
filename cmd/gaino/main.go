// Package main is the entry point for gaino, a client-side portfolio tracker.
// The application syncs a single portfolio document against a remote store
// with optimistic concurrency, joins it with cached market prices, and prints
// a view-ready summary.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for cached data access
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsarvesh2011/gaino/internal/config"
	"github.com/nsarvesh2011/gaino/internal/di"
	"github.com/nsarvesh2011/gaino/internal/state"
	"github.com/nsarvesh2011/gaino/pkg/logger"
)

// main orchestrates the startup sequence:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging
// 3. Wires all dependencies via the DI container
// 4. Refreshes portfolio and prices, applies an optional lot, prints state
// 5. In watch mode, runs background jobs until a shutdown signal arrives
func main() {
	var (
		symbol  = flag.String("add-symbol", "", "record a buy lot for this symbol")
		qty     = flag.Float64("add-qty", 0, "quantity for -add-symbol")
		price   = flag.Float64("add-price", 0, "unit price for -add-symbol")
		date    = flag.String("add-date", "", "trade date (YYYY-MM-DD) for -add-symbol")
		force   = flag.Bool("force", false, "bypass the price cache TTL")
		watch   = flag.Bool("watch", false, "keep running with background refresh jobs")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	logger.SetGlobalLogger(log)

	ctx := context.Background()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	summary := container.State.Refresh(ctx, *force)

	if *symbol != "" {
		var ok bool
		summary, ok = container.State.AddLot(ctx, *symbol, *qty, *price, *date)
		if !ok {
			log.Warn().Str("symbol", *symbol).Msg("Lot recorded locally but not persisted remotely")
		}
	}

	printSummary(summary)

	if !*watch {
		return
	}

	container.Scheduler.Start()
	log.Info().Msg("Watching for price updates, press Ctrl+C to exit")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
}

// printSummary renders the projection as a plain table on stdout.
func printSummary(s state.Summary) {
	fmt.Printf("%-12s %-6s %10s %12s %12s %12s %12s %8s\n",
		"SYMBOL", "KIND", "QTY", "AVG COST", "LAST", "VALUE", "P&L", "P&L %")
	for _, p := range s.Positions {
		fmt.Printf("%-12s %-6s %10.3f %12.2f %12.2f %12.2f %+12.2f %+7.2f%%\n",
			p.Symbol, p.Kind, p.Qty, p.AvgCost, p.LastPrice, p.Value, p.PnLAbs, p.PnLPct)
	}
	fmt.Printf("\nTotal (%s): invested %.2f, value %.2f, P&L %+.2f (%+.2f%%)\n",
		s.Currency, s.Invested, s.Value, s.PnLAbs, s.PnLPct)
}
