package geocache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helsinki Senate Square and points at known offsets from it.
const (
	senateLat = 60.1699
	senateLng = 24.9524
)

// offsetLat returns a point roughly meters north of (lat, lng).
// One degree of latitude is ~111320 m everywhere.
func offsetLat(lat float64, meters float64) float64 {
	return lat + meters/111320.0
}

func testCache(t *testing.T, now *time.Time) *Cache {
	t.Helper()

	c := New(nil)
	c.now = func() time.Time { return *now }

	return c
}

func TestLookup_EmptyCache(t *testing.T) {
	now := time.Now()
	c := testCache(t, &now)

	_, ok := c.Lookup(Category{Kind: "places", Radius: 1000}, senateLat, senateLng)
	assert.False(t, ok)
}

func TestLookup_HitWithinDistance(t *testing.T) {
	now := time.Now()
	c := testCache(t, &now)
	cat := Category{Kind: "places", Radius: 1000}

	c.Store(cat, "sig-1", senateLat, senateLng, []byte(`{"places":[1]}`))

	// 50 m away: hit.
	payload, ok := c.Lookup(cat, offsetLat(senateLat, 50), senateLng)
	require.True(t, ok)
	assert.JSONEq(t, `{"places":[1]}`, string(payload))
}

func TestLookup_MissBeyondDistance(t *testing.T) {
	now := time.Now()
	c := testCache(t, &now)
	cat := Category{Kind: "places", Radius: 1000}

	c.Store(cat, "sig-1", senateLat, senateLng, []byte(`{}`))

	// 301 m away: miss.
	_, ok := c.Lookup(cat, offsetLat(senateLat, 301), senateLng)
	assert.False(t, ok)
}

func TestLookup_MissAfterTTL(t *testing.T) {
	now := time.Now()
	c := testCache(t, &now)
	cat := Category{Kind: "places", Radius: 1000}

	c.Store(cat, "sig-1", senateLat, senateLng, []byte(`{}`))

	now = now.Add(DefaultTTL - time.Second)
	_, ok := c.Lookup(cat, senateLat, senateLng)
	assert.True(t, ok, "entry just under TTL must still hit")

	now = now.Add(2 * time.Second)
	_, ok = c.Lookup(cat, senateLat, senateLng)
	assert.False(t, ok, "entry past TTL must miss")

	// The expired entry was evicted during the scan.
	assert.Zero(t, c.Len())
}

func TestLookup_CategoriesDoNotMix(t *testing.T) {
	now := time.Now()
	c := testCache(t, &now)

	c.Store(Category{Kind: "places", Radius: 1000}, "sig", senateLat, senateLng, []byte(`{}`))

	_, ok := c.Lookup(Category{Kind: "places", Radius: 2000}, senateLat, senateLng)
	assert.False(t, ok, "same kind, different radius must miss")

	_, ok = c.Lookup(Category{Kind: "previews", Radius: 1000}, senateLat, senateLng)
	assert.False(t, ok, "different kind must miss")
}

func TestLookup_ReturnsCopy(t *testing.T) {
	now := time.Now()
	c := testCache(t, &now)
	cat := Category{Kind: "places", Radius: 1000}

	original := []byte(`{"a":1}`)
	c.Store(cat, "sig", senateLat, senateLng, original)

	// Mutating the stored slice must not affect the cache.
	original[2] = 'X'

	payload, ok := c.Lookup(cat, senateLat, senateLng)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(payload))

	// Mutating the returned slice must not affect later lookups.
	payload[2] = 'X'

	again, ok := c.Lookup(cat, senateLat, senateLng)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(again))
}

func TestInvalidate(t *testing.T) {
	now := time.Now()
	c := testCache(t, &now)

	places1 := Category{Kind: "places", Radius: 1000}
	places2 := Category{Kind: "places", Radius: 2000}
	previews := Category{Kind: "previews", Radius: 1000}

	c.Store(places1, "a", senateLat, senateLng, []byte(`1`))
	c.Store(places2, "b", senateLat, senateLng, []byte(`2`))
	c.Store(previews, "c", senateLat, senateLng, []byte(`3`))

	c.InvalidateCategory(places1)

	_, ok := c.Lookup(places1, senateLat, senateLng)
	assert.False(t, ok)
	_, ok = c.Lookup(places2, senateLat, senateLng)
	assert.True(t, ok)

	c.InvalidateKind("places")

	_, ok = c.Lookup(places2, senateLat, senateLng)
	assert.False(t, ok)
	_, ok = c.Lookup(previews, senateLat, senateLng)
	assert.True(t, ok)

	c.Invalidate()
	assert.Zero(t, c.Len())
}

func TestHaversine_KnownDistances(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64 // meters
		tolerance              float64
	}{
		{"same point", senateLat, senateLng, senateLat, senateLng, 0, 0.001},
		{"100 m north", senateLat, senateLng, offsetLat(senateLat, 100), senateLng, 100, 1},
		{"helsinki to tallinn", 60.1699, 24.9384, 59.4370, 24.7536, 82000, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			assert.InDelta(t, tt.want, got, tt.tolerance)
		})
	}
}
