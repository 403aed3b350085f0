// Package market serves last-known prices through a bounded-staleness
// read-through cache. Prices are a soft-real-time, best-effort signal: the
// repo never fails outward, degrading to stale cache data or an empty map.
package market

import (
	"context"
	"encoding/json"

	"github.com/nsarvesh2011/gaino/internal/clientdata"
	"github.com/nsarvesh2011/gaino/internal/clients/prices"
	"github.com/rs/zerolog"
)

const cacheTable = "prices"

// Feed is the read-only price source. Satisfied by *prices.Client.
type Feed interface {
	Fetch(ctx context.Context, tab string) (prices.Payload, error)
}

// Repo is the read-through price cache.
type Repo struct {
	feed  Feed
	cache *clientdata.Repository
	tab   string
	log   zerolog.Logger
}

// NewRepo creates a price repo over feed, caching into cache. tab selects the
// feed tab; empty means "stocks".
func NewRepo(feed Feed, cache *clientdata.Repository, tab string, log zerolog.Logger) *Repo {
	if tab == "" {
		tab = prices.DefaultTab
	}
	return &Repo{
		feed:  feed,
		cache: cache,
		tab:   tab,
		log:   log.With().Str("repo", "market").Logger(),
	}
}

// GetPrices returns the symbol-to-price mapping. It never returns an error:
// a cached mapping younger than the TTL short-circuits the feed unless force
// is set; a failed fetch falls back to the cached mapping regardless of age
// (stale data is better than no data), and to an empty map when no cache
// exists.
func (r *Repo) GetPrices(ctx context.Context, force bool) map[string]float64 {
	if !force {
		if cached, ok := r.fromCache(true); ok {
			r.log.Debug().Int("symbols", len(cached)).Msg("Cache hit")
			return cached
		}
	}

	payload, err := r.feed.Fetch(ctx, r.tab)
	if err != nil {
		if stale, ok := r.fromCache(false); ok {
			r.log.Warn().Err(err).Int("symbols", len(stale)).Msg("Feed failed, using stale cached prices")
			return stale
		}
		r.log.Warn().Err(err).Msg("Feed failed and no cached prices exist")
		return map[string]float64{}
	}

	mapping := payload.Prices
	if mapping == nil {
		mapping = map[string]float64{}
	}

	if err := r.cache.Store(cacheTable, r.tab, mapping, clientdata.TTLPrices); err != nil {
		r.log.Warn().Err(err).Msg("Failed to cache prices")
	}

	r.log.Info().
		Str("tab", payload.Tab).
		Str("asOf", payload.AsOf).
		Int("symbols", len(mapping)).
		Msg("Fetched prices")
	return mapping
}

// fromCache reads the cached mapping, optionally requiring freshness.
func (r *Repo) fromCache(freshOnly bool) (map[string]float64, bool) {
	var (
		data json.RawMessage
		err  error
	)
	if freshOnly {
		data, err = r.cache.GetIfFresh(cacheTable, r.tab)
	} else {
		data, err = r.cache.Get(cacheTable, r.tab)
	}
	if err != nil || data == nil {
		return nil, false
	}

	var mapping map[string]float64
	if err := json.Unmarshal(data, &mapping); err != nil {
		r.log.Warn().Err(err).Msg("Failed to parse cached prices")
		return nil, false
	}
	return mapping, true
}
