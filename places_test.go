package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderlore/wanderlore-go/internal/api"
	"github.com/wanderlore/wanderlore-go/internal/session"
)

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		lat     string
		lng     string
		wantLat float64
		wantLng float64
		wantErr bool
	}{
		{"helsinki", "60.1699", "24.9524", 60.1699, 24.9524, false},
		{"equator", "0", "0", 0, 0, false},
		{"bounds", "-90", "180", -90, 180, false},
		{"lat too big", "90.1", "0", 0, 0, true},
		{"lng too small", "0", "-180.1", 0, 0, true},
		{"not a number", "north", "24.9", 0, 0, true},
		{"empty", "", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lng, err := parseCoordinates(tt.lat, tt.lng)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantLat, lat)
			assert.Equal(t, tt.wantLng, lng)
		})
	}
}

func TestNearbyError(t *testing.T) {
	t.Run("no session suggests login", func(t *testing.T) {
		err := nearbyError(session.ErrNoSession)
		assert.Contains(t, err.Error(), "wanderlore login")
	})

	t.Run("rejected refresh suggests re-login", func(t *testing.T) {
		err := nearbyError(session.ErrRefreshRejected)
		assert.Contains(t, err.Error(), "login")
	})

	t.Run("unreachable mentions connection", func(t *testing.T) {
		err := nearbyError(api.ErrUnreachable)
		assert.Contains(t, err.Error(), "connection")
	})

	t.Run("other errors pass through", func(t *testing.T) {
		sentinel := errors.New("boom")
		assert.Same(t, sentinel, nearbyError(sentinel))
	})
}
