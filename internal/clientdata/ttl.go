package clientdata

import "time"

// TTL constants for cached observations.
const (
	// TTLObservation is the default freshness window; OBSERVATION_CACHE_TTL overrides it.
	TTLObservation = 6 * time.Hour

	// RetentionStale is how long an expired entry is kept as a fallback.
	RetentionStale = 30 * 24 * time.Hour
)
