// Package state combines the sync engine and price cache into a view-ready
// projection for the presentation layer, and holds the last published
// snapshot behind a mutex.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/nsarvesh2011/gaino/internal/domain"
	"github.com/rs/zerolog"
)

// Position is one view-ready row: a holding joined with its last known price.
type Position struct {
	Symbol    string
	Kind      string
	Currency  string
	Qty       float64
	AvgCost   float64
	LastPrice float64
	Value     float64
	PnLAbs    float64
	PnLPct    float64
}

// Summary is the full projection published to the presentation layer.
type Summary struct {
	Positions []Position
	Currency  string
	Invested  float64
	Value     float64
	PnLAbs    float64
	PnLPct    float64
	AsOf      time.Time
}

// Project joins a portfolio with a price mapping. Symbols without a price
// project with a zero last price; the P&L guards in the domain keep the math
// well-defined either way.
func Project(p domain.Portfolio, priceMap map[string]float64) Summary {
	s := Summary{
		Positions: make([]Position, 0, len(p.Holdings)),
		Currency:  p.DisplayCurrency,
		AsOf:      time.Now(),
	}

	for _, h := range p.Holdings {
		last := priceMap[h.Symbol]
		pos := Position{
			Symbol:    h.Symbol,
			Kind:      h.Kind,
			Currency:  h.Currency,
			Qty:       h.TotalQty(),
			AvgCost:   h.AvgCost(),
			LastPrice: last,
			Value:     h.CurrentValue(last),
			PnLAbs:    h.PnLAbs(last),
			PnLPct:    h.PnLPct(last),
		}
		s.Positions = append(s.Positions, pos)
		s.Invested += h.Invested()
		s.Value += pos.Value
	}

	s.PnLAbs = s.Value - s.Invested
	if s.Invested > 0 {
		s.PnLPct = s.PnLAbs / s.Invested * 100.0
	}
	return s
}

// Loader is the portfolio source. Satisfied by *sync.Engine.
type Loader interface {
	Load(ctx context.Context) domain.Portfolio
	Save(ctx context.Context, p domain.Portfolio) bool
}

// Pricer is the price source. Satisfied by *market.Repo.
type Pricer interface {
	GetPrices(ctx context.Context, force bool) map[string]float64
}

// Manager owns the current portfolio and its published summary. It serializes
// loads and mutations, which also satisfies the sync engine's one-writer
// requirement.
type Manager struct {
	engine Loader
	prices Pricer
	log    zerolog.Logger

	mu        sync.RWMutex
	portfolio domain.Portfolio
	summary   Summary
	loaded    bool
}

// NewManager creates a state manager.
func NewManager(engine Loader, pricer Pricer, log zerolog.Logger) *Manager {
	return &Manager{
		engine: engine,
		prices: pricer,
		log:    log.With().Str("manager", "state").Logger(),
	}
}

// Refresh loads the portfolio, fetches prices (forced past the cache TTL when
// force is set) and publishes a fresh summary.
func (m *Manager) Refresh(ctx context.Context, force bool) Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.portfolio = m.engine.Load(ctx)
	m.loaded = true
	priceMap := m.prices.GetPrices(ctx, force)
	m.summary = Project(m.portfolio, priceMap)

	m.log.Debug().
		Int("positions", len(m.summary.Positions)).
		Float64("value", m.summary.Value).
		Msg("Published summary")
	return m.summary
}

// AddLot appends a purchase lot and saves the new document. On save failure
// the previous portfolio and summary are retained and ok is false; the
// presentation layer is responsible for telling the user the save did not
// stick (conflict or offline).
func (m *Manager) AddLot(ctx context.Context, symbol string, qty, price float64, dateISO string) (Summary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		m.portfolio = m.engine.Load(ctx)
		m.loaded = true
	}

	next := m.portfolio.UpsertLot(symbol, qty, price, dateISO)
	if !m.engine.Save(ctx, next) {
		m.log.Warn().Str("symbol", symbol).Msg("Save failed; keeping previous state")
		return m.summary, false
	}

	m.portfolio = next
	m.summary = Project(m.portfolio, m.prices.GetPrices(ctx, false))
	return m.summary, true
}

// Current returns the last published summary.
func (m *Manager) Current() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summary
}
