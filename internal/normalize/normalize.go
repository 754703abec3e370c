// Package normalize canonicalizes article URLs for identity comparison
// and provides the content hash primitive.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

var trackingKeysExact = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"mc_cid": true,
	"mc_eid": true,
	"igshid": true,
}

const trackingKeyPrefix = "utm_"

// URL canonicalizes a source URL: the fragment is dropped and known
// tracking query parameters are removed. Remaining query pairs keep
// their original relative order, blank values included. The result is
// stable: URL(URL(u)) == URL(u).
func URL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		u.RawQuery = filterQuery(u.RawQuery)
	}

	return u.String(), nil
}

// filterQuery re-encodes a query string without tracking parameters.
// url.Values would lose pair order, so pairs are split by hand.
func filterQuery(rawQuery string) string {
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.Index(pair, "="); i >= 0 {
			key = pair[:i]
		}
		decoded, err := url.QueryUnescape(key)
		if err != nil {
			decoded = key
		}
		lower := strings.ToLower(decoded)
		if trackingKeysExact[lower] || strings.HasPrefix(lower, trackingKeyPrefix) {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

// Hash returns the hex SHA-256 of a markdown body. Stored with each
// article as a content identity signal; not a uniqueness key.
func Hash(markdown string) string {
	sum := sha256.Sum256([]byte(markdown))
	return hex.EncodeToString(sum[:])
}
