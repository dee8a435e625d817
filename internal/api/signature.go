package api

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Request signatures canonicalize the parameters that define request
// identity, so that two calls for "the same thing" collapse onto one
// in-flight operation and one cache entry.

// coordPrecision is the number of decimal places coordinates are rounded to
// in a signature. Four decimals is ~11 m of latitude — two callers that
// close together are asking the same question.
const coordPrecision = 4

// placeSignature identifies a tour request: place id plus tour type.
func placeSignature(op, placeID, tourType string) string {
	return fmt.Sprintf("%s|%s|%s", op, canonicalTerm(placeID), canonicalTerm(tourType))
}

// geoSignature identifies a location-bound request: rounded origin, radius,
// type filter, and result limit.
func geoSignature(op string, lat, lng float64, radius, maxResults int, placeType string) string {
	return fmt.Sprintf("%s|%.*f|%.*f|%d|%s|%d",
		op,
		coordPrecision, lat,
		coordPrecision, lng,
		radius,
		canonicalTerm(placeType),
		maxResults,
	)
}

// contentSignature identifies a static preview content document.
func contentSignature(city, category string) string {
	return fmt.Sprintf("content|%s|%s", canonicalTerm(city), canonicalTerm(category))
}

// canonicalTerm normalizes a free-text signature component: NFC so visually
// identical strings with different code point sequences compare equal, then
// lowercased and trimmed.
func canonicalTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}
