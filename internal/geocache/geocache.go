// Package geocache is an in-memory response cache keyed by operation
// category and geographic proximity. A lookup hits when a stored entry is
// both fresh enough (age under the TTL) and close enough (origin within the
// maximum haversine distance of the query origin). First match wins; the
// cache promises "fresh and close", not "closest".
package geocache

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Defaults chosen to match how long and how far a nearby-places answer
// stays representative for a walking user.
const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxDistance = 300.0 // meters
)

// Category identifies one cache bucket: an operation kind plus the search
// radius it was issued with. Results for different radii never mix.
type Category struct {
	Kind   string
	Radius int
}

type entry struct {
	createdAt time.Time
	lat, lng  float64
	payload   []byte
}

// Cache holds categorized, geo-tagged response payloads. Entries are
// evicted lazily: an expired entry is dropped when a lookup walks past it
// or when its category is invalidated.
type Cache struct {
	mu         sync.Mutex
	categories map[Category]map[string]*entry

	ttl         time.Duration
	maxDistance float64
	logger      *slog.Logger

	// now is replaced in tests.
	now func() time.Time
}

// New creates a cache with the default TTL and distance limits.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		categories:  make(map[Category]map[string]*entry),
		ttl:         DefaultTTL,
		maxDistance: DefaultMaxDistance,
		logger:      logger,
		now:         time.Now,
	}
}

// Lookup returns a copy of the first fresh entry in cat whose origin is
// within the distance limit of (lat, lng). Expired entries encountered
// during the scan are evicted.
func (c *Cache) Lookup(cat Category, lat, lng float64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.categories[cat]
	if len(entries) == 0 {
		return nil, false
	}

	now := c.now()

	for sig, e := range entries {
		if now.Sub(e.createdAt) >= c.ttl {
			delete(entries, sig)
			continue
		}

		if Haversine(lat, lng, e.lat, e.lng) <= c.maxDistance {
			c.logger.Debug("cache hit",
				slog.String("kind", cat.Kind),
				slog.Int("radius", cat.Radius),
			)

			out := make([]byte, len(e.payload))
			copy(out, e.payload)

			return out, true
		}
	}

	return nil, false
}

// Store records a response payload under cat, tagged with the request
// origin. The payload is copied; the cache never aliases caller memory.
func (c *Cache) Store(cat Category, signature string, lat, lng float64, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.categories[cat]
	if entries == nil {
		entries = make(map[string]*entry)
		c.categories[cat] = entries
	}

	entries[signature] = &entry{
		createdAt: c.now(),
		lat:       lat,
		lng:       lng,
		payload:   cp,
	}
}

// Invalidate clears the whole cache.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.categories = make(map[Category]map[string]*entry)
}

// InvalidateKind clears every category with the given operation kind,
// across all radii.
func (c *Cache) InvalidateKind(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for cat := range c.categories {
		if cat.Kind == kind {
			delete(c.categories, cat)
		}
	}
}

// InvalidateCategory clears one (kind, radius) category.
func (c *Cache) InvalidateCategory(cat Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.categories, cat)
}

// Len reports the number of live entries across all categories. Expired but
// not yet evicted entries are counted; Len is for diagnostics, not
// correctness.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, entries := range c.categories {
		n += len(entries)
	}

	return n
}

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between two
// latitude/longitude points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180

	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lng2 - lng1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
