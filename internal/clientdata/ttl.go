package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLPrices bounds price staleness; within this window reads are served
	// from cache without touching the feed.
	TTLPrices = 90 * time.Second
)
