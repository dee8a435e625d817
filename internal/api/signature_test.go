package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeoSignature_RoundsCoordinates(t *testing.T) {
	// Differences beyond the fourth decimal collapse onto one signature.
	a := geoSignature("places", 60.16991, 24.95239, 1000, 20, "landmark")
	b := geoSignature("places", 60.16994, 24.95241, 1000, 20, "landmark")
	assert.Equal(t, a, b)

	// A different radius is a different request.
	c := geoSignature("places", 60.16991, 24.95239, 2000, 20, "landmark")
	assert.NotEqual(t, a, c)
}

func TestGeoSignature_NormalizesType(t *testing.T) {
	a := geoSignature("places", 60.0, 24.0, 1000, 20, "Landmark")
	b := geoSignature("places", 60.0, 24.0, 1000, 20, " landmark ")
	assert.Equal(t, a, b)
}

func TestPlaceSignature(t *testing.T) {
	a := placeSignature("tour", "p1", "History")
	b := placeSignature("tour", "p1", "history")
	assert.Equal(t, a, b)

	assert.NotEqual(t, placeSignature("tour", "p1", "history"), placeSignature("tour", "p2", "history"))
	assert.NotEqual(t, placeSignature("tour", "p1", "history"), placeSignature("preview-tour", "p1", "history"))
}

func TestCanonicalTerm_UnicodeNormalization(t *testing.T) {
	// "é" as a single code point vs. "e" + combining acute accent.
	composed := "café"
	decomposed := "café"
	assert.Equal(t, canonicalTerm(composed), canonicalTerm(decomposed))
}
