package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/wanderlore/wanderlore-go/internal/geocache"
)

// TokenProvider supplies tokens for authenticated requests. Defined at the
// consumer per Go convention; the session manager is the real implementation.
type TokenProvider interface {
	// GetToken returns a currently valid token, refreshing if needed.
	GetToken(ctx context.Context) (string, error)

	// Refresh forces a refresh and returns the new token. Used after an
	// authorization failure; the retry must observe the token produced by
	// this refresh, never an older cached one.
	Refresh(ctx context.Context, force bool) (string, error)

	// Invalidate discards the session and purges stored credentials.
	// Called when the backend rejects a freshly refreshed token.
	Invalidate()
}

// buildFunc constructs the wire request given the (possibly empty) token.
// It is invoked once per attempt so a retried request gets a fresh body.
type buildFunc func(ctx context.Context, token string) (*http.Request, error)

// Dispatcher issues backend calls: it attaches tokens, collapses identical
// concurrent calls into one network request, retries exactly once after a
// forced refresh when a token is rejected, and feeds successful cacheable
// responses to the geospatial response cache.
type Dispatcher struct {
	httpClient *http.Client
	tokens     TokenProvider
	cache      *geocache.Cache
	logger     *slog.Logger

	// group is the in-flight map: callers with an equal signature share one
	// pending operation. Entries are removed when the operation settles,
	// success or failure, so nothing can hang the map forever.
	group singleflight.Group
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(httpClient *http.Client, tokens TokenProvider, cache *geocache.Cache, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if cache == nil {
		cache = geocache.New(logger)
	}

	return &Dispatcher{
		httpClient: httpClient,
		tokens:     tokens,
		cache:      cache,
		logger:     logger,
	}
}

// Cache exposes the response cache for invalidation by callers that mutate
// server state.
func (d *Dispatcher) Cache() *geocache.Cache {
	return d.cache
}

// Dispatch runs one operation. Concurrent calls with an equal signature
// share the same result; only one network call is made.
func (d *Dispatcher) Dispatch(ctx context.Context, signature string, requiresAuth bool, build buildFunc) ([]byte, error) {
	v, err, shared := d.group.Do(signature, func() (any, error) {
		return d.dispatchOnce(ctx, signature, requiresAuth, build)
	})

	if shared {
		d.logger.Debug("request shared with concurrent caller",
			slog.String("signature", signature),
		)
	}

	if err != nil {
		return nil, err
	}

	body, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("api: unexpected dispatch result type %T", v)
	}

	return body, nil
}

// DispatchCached is Dispatch preceded by a response-cache lookup and
// followed, on success, by a cache store tagged with the request origin.
func (d *Dispatcher) DispatchCached(
	ctx context.Context,
	cat geocache.Category,
	signature string,
	lat, lng float64,
	requiresAuth bool,
	build buildFunc,
) ([]byte, error) {
	if payload, ok := d.cache.Lookup(cat, lat, lng); ok {
		return payload, nil
	}

	body, err := d.Dispatch(ctx, signature, requiresAuth, build)
	if err != nil {
		return nil, err
	}

	d.cache.Store(cat, signature, lat, lng, body)

	return body, nil
}

// dispatchOnce is the single-flighted body of Dispatch: token acquisition,
// the network call, and the one permitted refresh-and-retry.
func (d *Dispatcher) dispatchOnce(ctx context.Context, signature string, requiresAuth bool, build buildFunc) ([]byte, error) {
	token := ""

	if requiresAuth {
		var err error

		// Fail fast without a network call when no token is available.
		token, err = d.tokens.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("api: obtaining token: %w", err)
		}
	}

	body, status, err := d.doOnce(ctx, token, build)
	if err != nil {
		return nil, err
	}

	if requiresAuth && isAuthFailure(status) {
		d.logger.Info("token rejected, forcing refresh and retrying once",
			slog.String("signature", signature),
			slog.Int("status", status),
		)

		// Strictly sequential: the retry observes the token produced by
		// this refresh.
		token, err = d.tokens.Refresh(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("api: refreshing after HTTP %d: %w", status, err)
		}

		body, status, err = d.doOnce(ctx, token, build)
		if err != nil {
			return nil, err
		}

		// A fresh token still rejected means the session is dead
		// server-side. Purge credentials; only a new sign-in recovers.
		if isAuthFailure(status) {
			d.logger.Warn("freshly refreshed token rejected, invalidating session",
				slog.String("signature", signature),
				slog.Int("status", status),
			)

			d.tokens.Invalidate()
		}
	}

	if sentinel := classifyStatus(status); sentinel != nil {
		return nil, &APIError{
			StatusCode: status,
			Message:    serverMessage(body),
			Err:        sentinel,
		}
	}

	return body, nil
}

// doOnce builds and executes one HTTP attempt, returning the body and
// status. A transport-level failure maps to ErrUnreachable.
func (d *Dispatcher) doOnce(ctx context.Context, token string, build buildFunc) ([]byte, int, error) {
	req, err := build(ctx, token)
	if err != nil {
		return nil, 0, fmt.Errorf("api: building request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("api: request canceled: %w", ctx.Err())
		}

		return nil, 0, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading response: %w", ErrUnreachable, err)
	}

	return body, resp.StatusCode, nil
}
