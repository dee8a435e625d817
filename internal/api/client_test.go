package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderlore/wanderlore-go/internal/geocache"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	d := NewDispatcher(nil, &fakeTokens{token: "tok"}, geocache.New(nil), nil)
	c := NewClient(srv.URL, srv.URL, "install-1", d, nil, nil)

	return c, srv
}

func TestPlacesNearby_DecodesAndCaches(t *testing.T) {
	var requests atomic.Int64

	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		assert.Equal(t, "/places/nearby", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("Authorization"))
		assert.Equal(t, "install-1", r.Header.Get("X-Installation-Id"))

		var body struct {
			Lat     float64 `json:"lat"`
			RadiusM int     `json:"radius_m"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 1000, body.RadiusM)

		_, _ = w.Write([]byte(`{"places":[{"id":"p1","name":"Senate Square","lat":60.1699,"lng":24.9524,"category":"landmark","distance_m":42}]}`))
	}))

	places, err := c.PlacesNearby(context.Background(), 60.1699, 24.9524, 1000, 20, "landmark")
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "p1", places[0].ID)
	assert.Equal(t, "Senate Square", places[0].Name)

	// Same spot, same radius, within TTL: no second network call.
	_, err = c.PlacesNearby(context.Background(), 60.1699, 24.9524, 1000, 20, "landmark")
	require.NoError(t, err)
	assert.Equal(t, int64(1), requests.Load())

	// Different radius is a different category: network call.
	_, err = c.PlacesNearby(context.Background(), 60.1699, 24.9524, 2000, 20, "landmark")
	require.NoError(t, err)
	assert.Equal(t, int64(2), requests.Load())
}

func TestPlacesNearby_MalformedPayload(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"places": "not an array"}`))
	}))

	_, err := c.PlacesNearby(context.Background(), 60.0, 24.0, 1000, 20, "")
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestTourByPlace(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tours/by-place", r.URL.Path)

		var body struct {
			PlaceID  string `json:"place_id"`
			TourType string `json:"tour_type"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "p1", body.PlaceID)
		assert.Equal(t, "history", body.TourType)

		_, _ = w.Write([]byte(`{"tour":{"place_id":"p1","tour_type":"history","title":"Senate Square","transcript":"...","audio_url":"https://cdn/1.mp3","duration_sec":180}}`))
	}))

	tour, err := c.TourByPlace(context.Background(), "p1", "history")
	require.NoError(t, err)
	assert.Equal(t, "Senate Square", tour.Title)
	assert.Equal(t, 180, tour.DurationSec)
}

func TestTourByPlace_MissingTourField(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	_, err := c.TourByPlace(context.Background(), "p1", "history")
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestPreviewTour_Unauthenticated(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tours/preview", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{"tour":{"place_id":"p1","tour_type":"history","title":"Teaser"}}`))
	}))

	tour, err := c.PreviewTour(context.Background(), "p1", "history")
	require.NoError(t, err)
	assert.Equal(t, "Teaser", tour.Title)
}

func TestPreviewContent_Success(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/previews/helsinki/landmarks.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"previews":[{"place_id":"p1","name":"Senate Square","category":"landmarks","teaser":"..."}]}`))
	}))

	previews, err := c.PreviewContent(context.Background(), "Helsinki", "Landmarks")
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Equal(t, "p1", previews[0].PlaceID)
}

func TestPreviewContent_UnreachableDegradesToEmpty(t *testing.T) {
	d := NewDispatcher(nil, &fakeTokens{}, geocache.New(nil), nil)
	c := NewClient("http://127.0.0.1:1", "http://127.0.0.1:1", "", d, nil, nil)

	previews, err := c.PreviewContent(context.Background(), "helsinki", "landmarks")
	require.NoError(t, err)
	assert.Empty(t, previews)
	assert.NotNil(t, previews)
}

func TestPreviewContent_NotFoundDegradesToEmpty(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	previews, err := c.PreviewContent(context.Background(), "atlantis", "landmarks")
	require.NoError(t, err)
	assert.Empty(t, previews)
}

func TestPreviewContent_MalformedPayloadIsAnError(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))

	_, err := c.PreviewContent(context.Background(), "helsinki", "landmarks")
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestPrefetchPreviews(t *testing.T) {
	var requests atomic.Int64

	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		switch r.URL.Path {
		case "/previews/helsinki/landmarks.json":
			_, _ = w.Write([]byte(`{"previews":[{"place_id":"p1"}]}`))
		case "/previews/helsinki/museums.json":
			_, _ = w.Write([]byte(`{"previews":[{"place_id":"p2"},{"place_id":"p3"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))

	out, err := c.PrefetchPreviews(context.Background(), "helsinki", []string{"landmarks", "museums", "parks"})
	require.NoError(t, err)
	assert.Len(t, out["landmarks"], 1)
	assert.Len(t, out["museums"], 2)
	assert.Empty(t, out["parks"]) // 404 degrades to empty
	assert.Equal(t, int64(3), requests.Load())
}
