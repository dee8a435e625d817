package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/wanderlore/wanderlore-go/internal/geocache"
)

const userAgent = "wanderlore-go/0.1"

// Operation kinds, used as cache category keys.
const (
	kindPlaces   = "places"
	kindTour     = "tour"
	kindPreviews = "previews"
)

// prefetchConcurrency bounds parallel preview content fetches.
const prefetchConcurrency = 4

// Place is a point of interest near the user.
type Place struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Category string  `json:"category"`
	Distance float64 `json:"distance_m"`
}

// Tour is one audio narration about a place.
type Tour struct {
	PlaceID     string `json:"place_id"`
	TourType    string `json:"tour_type"`
	Title       string `json:"title"`
	Transcript  string `json:"transcript"`
	AudioURL    string `json:"audio_url"`
	DurationSec int    `json:"duration_sec"`
}

// PlacePreview is a prebuilt, unauthenticated teaser for guest browsing.
type PlacePreview struct {
	PlaceID  string `json:"place_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Teaser   string `json:"teaser"`
}

// Client exposes the backend's domain operations: places near a location,
// tours by place, on-demand generation, and guest preview content.
type Client struct {
	baseURL    string
	contentURL string
	installID  string
	dispatcher *Dispatcher
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend client. baseURL is the authenticated API
// ("https://api.wanderlore.app/v1"), contentURL the static preview content
// host. installID is attached to every request for server-side diagnostics.
func NewClient(baseURL, contentURL, installID string, dispatcher *Dispatcher, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		contentURL: contentURL,
		installID:  installID,
		dispatcher: dispatcher,
		httpClient: httpClient,
		logger:     logger,
	}
}

// PlacesNearby returns points of interest around (lat, lng). Responses are
// cached by (kind, radius) with 300 m proximity matching, so a second query
// from roughly the same spot within the TTL costs no network call.
func (c *Client) PlacesNearby(ctx context.Context, lat, lng float64, radiusMeters, maxResults int, placeType string) ([]Place, error) {
	sig := geoSignature(kindPlaces, lat, lng, radiusMeters, maxResults, placeType)
	cat := geocache.Category{Kind: kindPlaces, Radius: radiusMeters}

	body, err := c.dispatcher.DispatchCached(ctx, cat, sig, lat, lng, true,
		c.jsonPost("/places/nearby", map[string]any{
			"lat":         lat,
			"lng":         lng,
			"radius_m":    radiusMeters,
			"type":        placeType,
			"max_results": maxResults,
		}),
	)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Places []Place `json:"places"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: places response: %w", ErrBadPayload, err)
	}

	return parsed.Places, nil
}

// TourByPlace fetches the narration for one place. Deduplicated in flight
// but not geo-cached: tours are keyed by place, not by where the user
// stands.
func (c *Client) TourByPlace(ctx context.Context, placeID, tourType string) (*Tour, error) {
	sig := placeSignature(kindTour, placeID, tourType)

	body, err := c.dispatcher.Dispatch(ctx, sig, true,
		c.jsonPost("/tours/by-place", map[string]any{
			"place_id":  placeID,
			"tour_type": tourType,
		}),
	)
	if err != nil {
		return nil, err
	}

	return parseTour(body)
}

// PreviewTour fetches a tour through the unauthenticated preview endpoint,
// for guests evaluating the app before signing up.
func (c *Client) PreviewTour(ctx context.Context, placeID, tourType string) (*Tour, error) {
	sig := placeSignature("preview-tour", placeID, tourType)

	body, err := c.dispatcher.Dispatch(ctx, sig, false,
		c.jsonPost("/tours/preview", map[string]any{
			"place_id":  placeID,
			"tour_type": tourType,
		}),
	)
	if err != nil {
		return nil, err
	}

	return parseTour(body)
}

// PreviewContent fetches the prebuilt preview document for a city and
// category. Transport failure degrades to an empty result, never an error —
// guest browsing must not hard-fail when the content host is unreachable.
func (c *Client) PreviewContent(ctx context.Context, city, category string) ([]PlacePreview, error) {
	sig := contentSignature(city, category)
	url := fmt.Sprintf("%s/previews/%s/%s.json", c.contentURL, canonicalTerm(city), canonicalTerm(category))

	body, err := c.dispatcher.Dispatch(ctx, sig, false, func(ctx context.Context, _ string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("User-Agent", userAgent)

		return req, nil
	})
	if err != nil {
		if errors.Is(err, ErrUnreachable) || errors.Is(err, ErrNotFound) {
			c.logger.Debug("preview content unavailable, degrading to empty",
				slog.String("city", city),
				slog.String("category", category),
			)

			return []PlacePreview{}, nil
		}

		return nil, err
	}

	var parsed struct {
		Previews []PlacePreview `json:"previews"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: preview content: %w", ErrBadPayload, err)
	}

	if parsed.Previews == nil {
		parsed.Previews = []PlacePreview{}
	}

	return parsed.Previews, nil
}

// PrefetchPreviews loads preview documents for several categories in
// parallel. Individual failures degrade to empty per PreviewContent; only
// payload corruption aborts the batch.
func (c *Client) PrefetchPreviews(ctx context.Context, city string, categories []string) (map[string][]PlacePreview, error) {
	results := make([]([]PlacePreview), len(categories))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchConcurrency)

	for i, category := range categories {
		g.Go(func() error {
			previews, err := c.PreviewContent(ctx, city, category)
			if err != nil {
				return err
			}

			results[i] = previews

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]PlacePreview, len(categories))
	for i, category := range categories {
		out[category] = results[i]
	}

	return out, nil
}

// jsonPost returns a buildFunc for an authenticated JSON POST. The body is
// re-marshaled on every attempt so a retry never reuses a drained reader.
func (c *Client) jsonPost(path string, payload map[string]any) buildFunc {
	return func(ctx context.Context, _ string) (*http.Request, error) {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)

		if c.installID != "" {
			req.Header.Set("X-Installation-Id", c.installID)
		}

		return req, nil
	}
}

func parseTour(body []byte) (*Tour, error) {
	var parsed struct {
		Tour *Tour `json:"tour"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: tour response: %w", ErrBadPayload, err)
	}

	if parsed.Tour == nil {
		return nil, fmt.Errorf("%w: tour response missing tour field", ErrBadPayload)
	}

	return parsed.Tour, nil
}
