package sessionctx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Locator returns a human readable approximate location, or "" when none
// is known.
type Locator interface {
	Locate(ctx context.Context) string
}

// GeoCacheKey is the cache entry holding the last geolocation lookup.
const GeoCacheKey = "geolocation"

const (
	ipinfoURL  = "https://ipinfo.io/json"
	geoTimeout = 3 * time.Second
)

// Cache is the subset of the file cache used for lookups.
type Cache interface {
	Get(key string, v any) bool
	Put(key string, v any) error
}

// GeoInfo is the subset of the ipinfo.io response that is displayed.
type GeoInfo struct {
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
	Country  string `json:"country,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// String renders "city, region, country (timezone)" skipping empty parts.
func (g GeoInfo) String() string {
	var parts []string
	for _, p := range []string{g.City, g.Region, g.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	s := strings.Join(parts, ", ")
	if g.Timezone != "" {
		s += fmt.Sprintf(" (%s)", g.Timezone)
	}
	return s
}

// IPInfo looks up the location of the public IP via ipinfo.io. Successful
// lookups are cached; failures are not.
type IPInfo struct {
	endpoint string
	client   *http.Client
	cache    Cache
}

// NewIPInfo returns a locator backed by cache (which may be nil).
func NewIPInfo(cache Cache) *IPInfo {
	return &IPInfo{
		endpoint: ipinfoURL,
		client:   &http.Client{Timeout: geoTimeout},
		cache:    cache,
	}
}

// Locate implements Locator.
func (l *IPInfo) Locate(ctx context.Context) string {
	var geo GeoInfo
	if l.cache != nil && l.cache.Get(GeoCacheKey, &geo) {
		return geo.String()
	}

	ctx, cancel := context.WithTimeout(ctx, geoTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "larvling")
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return ""
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	if err := json.NewDecoder(resp.Body).Decode(&geo); err != nil {
		return ""
	}
	if l.cache != nil {
		_ = l.cache.Put(GeoCacheKey, geo)
	}
	return geo.String()
}
